package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kansoai/interviewkit/pkg/kanso"
	"github.com/kansoai/interviewkit/pkg/turn"
	"github.com/kansoai/interviewkit/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:          "kanso",
	Short:        "Kanso practice-interview client",
	Long:         `kanso is a client for the Kanso platform: browse the job feed, manage applications, and run voice practice interviews from the terminal.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs <user-id>",
	Short: "List jobs you have not swiped on yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClient()
		jobs, err := client.Jobs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No new jobs in your feed.")
			return nil
		}
		for _, job := range jobs {
			fmt.Printf("%-14s %-28s %-20s %s\n", job.ID, job.Title, job.Company, job.Location)
		}
		return nil
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <user-id>",
	Short: "List your applications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClient()
		apps, err := client.Dashboard(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, app := range apps {
			fmt.Printf("%-38s %-10s %-28s %s\n", app.ID, app.Status, app.JobTitle, app.Company)
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <user-id>",
	Short: "Show a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClient()
		profile, err := client.Profile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s <%s>\n", profile.Name, profile.Email)
		if profile.Headline != "" {
			fmt.Println(profile.Headline)
		}
		if len(profile.Skills) > 0 {
			fmt.Printf("skills: %v\n", profile.Skills)
		}
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <application-id>",
	Short: "Show interview feedback history for an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClient()
		history, err := client.FeedbackHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("No feedback yet. Run a practice interview first.")
			return nil
		}
		for _, fb := range history {
			printFeedback(fb)
			fmt.Println()
		}
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications <user-id>",
	Short: "List notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markAll, _ := cmd.Flags().GetBool("mark-all")

		client := apiClient()
		notes, err := client.Notifications(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, n := range notes {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %-30s %s\n", marker, n.Title, n.Body)
		}
		if markAll {
			return client.MarkAllNotificationsRead(cmd.Context(), args[0])
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "End-of-utterance model management",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download end-of-utterance detection models",
	Long: `Download the English and multilingual end-of-utterance models.
Models are stored in $KANSO_MODEL_PATH or ~/.kanso/models.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		downloader := turn.NewDownloader("")
		return downloader.DownloadAll(cmd.Context())
	},
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which models are downloaded",
	Run: func(cmd *cobra.Command, args []string) {
		status := turn.NewDownloader("").Status()
		for name, complete := range status {
			state := "missing"
			if complete {
				state = "ready"
			}
			fmt.Printf("%-14s %s\n", name, state)
		}
	},
}

func apiClient() *kanso.Client {
	base := os.Getenv("KANSO_API")
	if base == "" {
		base = "http://localhost:8000"
	}
	return kanso.New(base, kanso.WithLogger(setupLogger()))
}

func setupLogger() *slog.Logger {
	logFormat := os.Getenv("KANSO_LOG_FORMAT")
	logLevel := os.Getenv("KANSO_LOG_LEVEL")

	opts := &slog.HandlerOptions{}
	switch {
	case verbose, logLevel == "debug":
		opts.Level = slog.LevelDebug
	case logLevel == "warn":
		opts.Level = slog.LevelWarn
	case logLevel == "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func printFeedback(fb kanso.Feedback) {
	fmt.Printf("score: %s\n%s\n", fb.Score, fb.Summary)
	for _, s := range fb.Strengths {
		fmt.Printf("  + %s\n", s)
	}
	for _, s := range fb.Improvements {
		fmt.Printf("  - %s\n", s)
	}
}

// signalContext ends on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	notificationsCmd.Flags().Bool("mark-all", false, "mark every notification read after listing")
	modelsCmd.AddCommand(modelsDownloadCmd, modelsStatusCmd)
	rootCmd.AddCommand(versionCmd, jobsCmd, dashboardCmd, profileCmd, feedbackCmd, notificationsCmd, modelsCmd, interviewCmd)
}

func main() {
	// Missing .env is fine; the environment may already be set.
	godotenv.Load()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
