package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/resumly/resumly/internal/server"
	"github.com/resumly/resumly/internal/service"
)

const banner = `
 ___ ___ ___ _   _ __  __ _  _  _
| _ \ __/ __| | | |  \/  | | | || |
|   / _|\__ \ |_| | |\/| | |_|_  _|
|_|_\___|___/\___/|_|  |_|____||_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Resumly server",
		Long:  "Start the HTTP server that hosts the management API and the AI-readable resume endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, CORS *)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	if dev {
		viper.Set("logging.level", "debug")
	}
	logger := newLogger()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()
	logger.Info("store initialized", "path", resolveDataDir())

	auth := service.NewAuth(st, jwtSecret(), logger)

	cfg := server.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 && !dev {
		cfg.CORSOrigins = origins
	}
	if limit := viper.GetInt("server.rate_limit"); limit > 0 {
		cfg.RateLimit = limit
	}
	if timeout := viper.GetString("server.shutdown_timeout"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	cfg.APIKeyHeader = viper.GetString("auth.api_key_header")
	if viper.GetBool("server.tls.enabled") {
		cfg.TLSCertFile = viper.GetString("server.tls.cert_file")
		cfg.TLSKeyFile = viper.GetString("server.tls.key_file")
	}
	cfg.AutosaveDebounce = configDuration("autosave.debounce")
	cfg.AutosaveSavedHold = configDuration("autosave.saved_hold")

	srv := server.New(cfg, st, auth, logger)

	fmt.Printf("→ Resumly %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Resumes:    http://%s:%d/api/v1/resumes\n", host, port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	return srv.ListenAndServe()
}

// configDuration parses a duration setting, returning zero (take the
// default) when unset or malformed.
func configDuration(key string) time.Duration {
	raw := viper.GetString(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
