// Command tradectl administers a trading game deployment: database
// migrations, teacher approvals and scenario files.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/database"
	"github.com/smarter-english/elt-trading-game/internal/logger"
)

var (
	databaseURL string
	logLevel    string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "tradectl",
	Short:         "Administer the commodity trading game",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetupWriter(cmd.ErrOrStderr(), logLevel, "console")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (or set DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Operation timeout")
}

// openAccounts connects to the database for account administration.
func openAccounts(ctx context.Context) (*auth.Service, func(), error) {
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("no database: pass --database-url or set DATABASE_URL")
	}

	db, err := database.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}

	// Role changes never issue tokens.
	svc := auth.NewService(auth.NewPostgresStore(db.Pool()), auth.DefaultHasher(), nil)
	return svc, db.Close, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
