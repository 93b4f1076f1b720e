package cmd

import (
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/tokens"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Grading API token management",
	Long:  "Issue bearer tokens for the grading service, signed with auth.jwt_secret",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token for a trainee or instructor",
	Long: `Issue a signed bearer token for the grading API.

Trainee tokens may grade and read their own results. Restrict a token to
specific scenario instances with --instance (repeatable). Instructor
tokens may read every trainee's results.

Examples:
  rangehawk token issue --trainee alice --instance 6f1c2a9e-...
  rangehawk token issue --trainee bob --role instructor --ttl 24h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		trainee, _ := cmd.Flags().GetString("trainee")
		role, _ := cmd.Flags().GetString("role")
		instances, _ := cmd.Flags().GetStringSlice("instance")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if trainee == "" {
			return errors.New("--trainee is required")
		}
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		gen := tokens.NewTokenGenerator(cfg.Auth.JWTSecret, ttl)
		token, err := gen.Generate(trainee, role, instances)
		if err != nil {
			return err
		}

		expires := time.Now().Add(ttl).UTC()
		issued := struct {
			Token     string    `json:"token"`
			Trainee   string    `json:"trainee"`
			Role      string    `json:"role"`
			Instances []string  `json:"instances,omitempty"`
			ExpiresAt time.Time `json:"expires_at"`
		}{token, trainee, role, instances, expires}

		return printer.Render(issued, func(w io.Writer) {
			printer.Success("Token issued for %s (%s)", trainee, role)
			printer.Info("Expires: %s", expires.Format(time.RFC3339))
			printer.Info("\n%s", token)
			printer.Info("\nUse this token with:")
			printer.Info("  curl -H 'Authorization: Bearer <token>' ...")
		})
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().String("trainee", "", "trainee name (required)")
	tokenIssueCmd.Flags().String("role", tokens.RoleTrainee, "role: trainee, instructor")
	tokenIssueCmd.Flags().StringSlice("instance", nil, "instance IDs the token may grade (default: any)")
	tokenIssueCmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
}
