package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resumly/resumly/internal/model"
)

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Manage resume pages",
		Long:  "Create, list, and export the resume pages served to AI clients.",
	}

	cmd.AddCommand(newResumeCreateCmd())
	cmd.AddCommand(newResumeListCmd())
	cmd.AddCommand(newResumeExportCmd())

	return cmd
}

// ---------- resume create ----------

func newResumeCreateCmd() *cobra.Command {
	var (
		userEmail string
		slug      string
		title     string
		publish   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new resume page",
		Example: `  resumly resume create --user ada@example.com --slug ada --title "Backend Engineer"
  resumly resume create --user ada@example.com --slug ada --title "Backend Engineer" --publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeCreate(userEmail, slug, title, publish)
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.Flags().StringVar(&slug, "slug", "", "URL slug, e.g. 'ada' serves /api/v1/resumes/ada (required)")
	cmd.Flags().StringVar(&title, "title", "", "Resume title (required)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish immediately")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("slug")
	cmd.MarkFlagRequired("title")

	return cmd
}

func runResumeCreate(userEmail, slug, title string, publish bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	user, err := resolveUser(ctx, st, userEmail)
	if err != nil {
		return err
	}

	resume := &model.Resume{
		OwnerID:     user.ID,
		Slug:        slug,
		Title:       title,
		IsPublished: publish,
	}
	if err := st.CreateResume(ctx, resume); err != nil {
		return fmt.Errorf("create resume: %w", err)
	}

	fmt.Printf("Created resume %q (id %d)\n", slug, resume.ID)
	if !publish {
		fmt.Println("The page is unpublished; AI clients in stdio mode will not see it yet.")
	}
	return nil
}

// ---------- resume list ----------

func newResumeListCmd() *cobra.Command {
	var (
		userEmail  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a user's resume pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeList(userEmail, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runResumeList(userEmail string, jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	user, err := resolveUser(ctx, st, userEmail)
	if err != nil {
		return err
	}

	resumes, err := st.ListResumes(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list resumes: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resumes)
	}

	if len(resumes) == 0 {
		fmt.Println("No resumes. Use 'resumly resume create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-16s %-32s %-10s\n", "ID", "SLUG", "TITLE", "PUBLISHED")
	fmt.Printf("%-6s %-16s %-32s %-10s\n", "--", "----", "-----", "---------")
	for _, r := range resumes {
		published := "yes"
		if !r.IsPublished {
			published = "no"
		}
		fmt.Printf("%-6d %-16s %-32s %-10s\n", r.ID, r.Slug, r.Title, published)
	}

	return nil
}

// ---------- resume export ----------

func newResumeExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <slug>",
		Short: "Export a resume page as JSON",
		Long:  "Write the full resume document, sections included, to stdout as indented JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumeExport(args[0])
		},
	}

	return cmd
}

func runResumeExport(slug string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	resume, err := st.GetResumeBySlug(context.Background(), slug)
	if err != nil {
		return fmt.Errorf("no resume with slug %q", slug)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resume)
}
