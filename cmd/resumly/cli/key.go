package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, rotate, and revoke the API keys AI clients use to read resumes.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyDeleteCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		userEmail  string
		name       string
		resumeSlug string
		admin      bool
		perms      []string
		expires    string
		maxUses    int64
		rateLimit  int
		ips        []string
		userAgent  string
		rotation   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key bound to a resume (or marked admin). The raw key is shown once and cannot be retrieved again.",
		Example: `  resumly key create --user ada@example.com --resume ada --perm resume:read --name "Claude Desktop"
  resumly key create --user ada@example.com --admin --perm read:all --expires 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(userEmail, name, resumeSlug, admin, perms, expires, maxUses, rateLimit, ips, userAgent, rotation)
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable key name (required)")
	cmd.Flags().StringVar(&resumeSlug, "resume", "", "Slug of the resume to bind the key to")
	cmd.Flags().BoolVar(&admin, "admin", false, "Create an admin key covering all the user's resumes")
	cmd.Flags().StringSliceVar(&perms, "perm", nil, "Permission to grant, repeatable (e.g. resume:read)")
	cmd.Flags().StringVar(&expires, "expires", "", "Lifetime as a duration, e.g. 720h (default: no expiry)")
	cmd.Flags().Int64Var(&maxUses, "max-uses", 0, "Maximum number of uses (0 = unlimited)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per hour (0 = service default)")
	cmd.Flags().StringSliceVar(&ips, "ip", nil, "Allowed client IP or CIDR, repeatable")
	cmd.Flags().StringVar(&userAgent, "user-agent", "", "Regexp the client User-Agent must match")
	cmd.Flags().StringVar(&rotation, "rotation", "never", "Rotation policy: never, monthly, quarterly, yearly")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(userEmail, name, resumeSlug string, admin bool, perms []string, expires string, maxUses int64, rateLimit int, ips []string, userAgent, rotation string) error {
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

	spec := service.KeySpec{
		Name:             name,
		IsAdmin:          admin,
		Permissions:      perms,
		RateLimit:        rateLimit,
		IPWhitelist:      ips,
		UserAgentPattern: userAgent,
		RotationPolicy:   model.RotationPolicy(rotation),
	}

	if resumeSlug != "" {
		resume, err := st.GetResumeBySlug(ctx, resumeSlug)
		if err != nil {
			return fmt.Errorf("no resume with slug %q", resumeSlug)
		}
		spec.ResumeID = &resume.ID
	}
	if expires != "" {
		d, err := time.ParseDuration(expires)
		if err != nil {
			return fmt.Errorf("invalid --expires duration: %w", err)
		}
		at := time.Now().Add(d)
		spec.ExpiresAt = &at
	}
	if maxUses > 0 {
		spec.MaxUses = &maxUses
	}

	key, secret, err := service.NewKeys(st).Create(ctx, user.ID, spec)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:         %s\n", secret)
	fmt.Printf("  Name:        %s\n", key.Name)
	fmt.Printf("  Permissions: %s\n", strings.Join(key.Permissions, ", "))
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires:     %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	if key.NextRotationAt != nil {
		fmt.Printf("  Rotate by:   %s\n", key.NextRotationAt.Format("2006-01-02"))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		userEmail  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(userEmail, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyList(userEmail string, jsonOutput bool) error {
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

	keys, err := service.NewKeys(st).List(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys. Use 'resumly key create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-12s %-24s %-6s %-8s\n", "ID", "NAME", "KEY", "SCOPE", "VER", "ACTIVE")
	fmt.Printf("%-6s %-24s %-12s %-24s %-6s %-8s\n", "--", "----", "---", "-----", "---", "------")
	for i := range keys {
		k := &keys[i]
		scope := "admin"
		if !k.IsAdmin {
			scope = k.ResumeTitle
			if scope == "" && k.ResumeID != nil {
				scope = "resume:" + strconv.FormatInt(*k.ResumeID, 10)
			}
		}
		active := "yes"
		if !k.IsActive() {
			active = "no"
		}
		fmt.Printf("%-6d %-24s %-12s %-24s %-6d %-8s\n", k.ID, k.Name, k.DisplayKey(), scope, k.KeyVersion, active)
	}

	return nil
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	var (
		userEmail string
		confirm   string
	)

	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Rotate an API key's secret",
		Long: `Replace a key's secret with freshly generated material. The key's identity,
scope, and permissions are unchanged; its version is bumped. The old secret
stops validating the moment the new one takes effect.

Rotation is destructive for any client still holding the old secret, so it
must be confirmed by typing the word "rotate".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRotate(userEmail, args[0], confirm)
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.Flags().StringVar(&confirm, "confirm", "", `Confirmation phrase (prompted if omitted; must be "rotate")`)
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyRotate(userEmail, keyIDArg, confirm string) error {
	keyID, err := strconv.ParseInt(keyIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", keyIDArg)
	}

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

	if confirm == "" {
		fmt.Print(`Rotating invalidates the current secret. Type "rotate" to confirm: `)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		confirm = strings.TrimSpace(line)
	}

	key, secret, err := service.NewRotator(st).Rotate(ctx, user.ID, keyID, confirm)
	if err != nil {
		return fmt.Errorf("rotate api key: %w", err)
	}

	fmt.Println("API Key rotated:")
	fmt.Println()
	fmt.Printf("  Key:     %s\n", secret)
	fmt.Printf("  Name:    %s\n", key.Name)
	fmt.Printf("  Version: %d\n", key.KeyVersion)
	fmt.Println()
	fmt.Println("  Update your clients now - the previous secret no longer works.")
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var userEmail string

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Deactivate an API key, preventing any further authenticated requests. The record and its usage history are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(userEmail, args[0])
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyRevoke(userEmail, keyIDArg string) error {
	keyID, err := strconv.ParseInt(keyIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", keyIDArg)
	}

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

	if err := service.NewKeys(st).Revoke(ctx, user.ID, keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %d\n", keyID)
	return nil
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	var userEmail string

	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key and its usage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDelete(userEmail, args[0])
		},
	}

	cmd.Flags().StringVar(&userEmail, "user", "", "Email of the owning user (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyDelete(userEmail, keyIDArg string) error {
	keyID, err := strconv.ParseInt(keyIDArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", keyIDArg)
	}

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

	if err := service.NewKeys(st).Delete(ctx, user.ID, keyID); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}

	fmt.Printf("Deleted API key %d\n", keyID)
	return nil
}
