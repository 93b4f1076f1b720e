package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
	"github.com/telhawk-systems/rangehawk/internal/results"
	"github.com/telhawk-systems/rangehawk/internal/rubric"
	"github.com/telhawk-systems/rangehawk/internal/service"
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade trainee submissions",
	Long: `Score a submission against a scenario instance's answer key.

The answer key is read from a file (--key) or looked up by instance ID in
the configured key store (--instance). Sealed key files are opened with
--passphrase or keys.passphrase.`,
}

var gradeSOCCmd = &cobra.Command{
	Use:   "soc <submission.json>",
	Short: "Grade a SOC analyst submission",
	Long: `Grade a SOC submission (ioc_list, mitre_mapping, detection_rule,
triage_summary).

Examples:
  rangehawk grade soc analyst.json --scenario suspicious-login --key ./datasets/evaluation/answer_key.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGrade(cmd, rubric.DomainSOC, args)
	},
}

var gradeMLCmd = &cobra.Command{
	Use:   "ml <submission.json>",
	Short: "Grade an ML engineer submission",
	Long: `Grade an ML submission (anomaly_score, model_used, features,
explanation).

Examples:
  rangehawk grade ml model.json --scenario suspicious-login --instance 6f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGrade(cmd, rubric.DomainML, args)
	},
}

var gradeCombinedCmd = &cobra.Command{
	Use:   "combined <soc.json> <ml.json>",
	Short: "Cross-validate a SOC and an ML submission",
	Long: `Grade a SOC and an ML submission together, checking that both found
the same attacker and that each explains its reasoning.

Examples:
  rangehawk grade combined analyst.json model.json --scenario credential-theft --key ./datasets/evaluation/answer_key.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGrade(cmd, rubric.DomainCombined, args)
	},
}

func init() {
	rootCmd.AddCommand(gradeCmd)
	gradeCmd.AddCommand(gradeSOCCmd, gradeMLCmd, gradeCombinedCmd)

	gradeCmd.PersistentFlags().String("scenario", "", "scenario the submission belongs to (required)")
	gradeCmd.PersistentFlags().String("key", "", "answer key file (answer_key.json or answer_key.sealed)")
	gradeCmd.PersistentFlags().String("instance", "", "instance ID to look up in the key store")
	gradeCmd.PersistentFlags().String("passphrase", "", "passphrase for sealed keys (default: keys.passphrase)")
	gradeCmd.PersistentFlags().String("trainee", "", "trainee recorded with the result (default: current user)")
	_ = gradeCmd.MarkPersistentFlagRequired("scenario")
}

func runGrade(cmd *cobra.Command, domain rubric.Domain, args []string) error {
	ctx := cmd.Context()

	scenarioName, _ := cmd.Flags().GetString("scenario")
	keyPath, _ := cmd.Flags().GetString("key")
	instanceID, _ := cmd.Flags().GetString("instance")
	if (keyPath == "") == (instanceID == "") {
		return errors.New("exactly one of --key or --instance is required")
	}

	req := service.GradeRequest{
		Scenario:   scenarioName,
		InstanceID: instanceID,
		Trainee:    traineeName(cmd),
		Domain:     domain,
	}
	subs := make([]*rubric.Submission, 0, len(args))
	for _, path := range args {
		sub, err := readSubmission(path)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	if domain == rubric.DomainCombined {
		req.SOC, req.ML = subs[0], subs[1]
	} else {
		req.Submission = subs[0]
	}

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	b := newBackends()
	defer b.Close()

	opts := []service.GraderOption{service.WithGraderLogger(logger)}
	repo, err := b.resultsRepo(ctx, false)
	if err != nil {
		return err
	}
	if repo != nil {
		opts = append(opts, service.WithResults(repo))
	}
	if cfg.Grading.Publish {
		pub, err := b.publisher("rangehawk-grade")
		if err != nil {
			return err
		}
		if pub != nil {
			opts = append(opts, service.WithPublisher(pub, cfg.NATS.SubjectPrefix))
		}
	}

	var result *results.Result
	if keyPath != "" {
		key, err := answerkey.ReadFile(keyPath, passphrase(cmd))
		if err != nil {
			return err
		}
		result, err = service.NewGrader(cat, nil, opts...).GradeWithKey(ctx, req, key)
		if err != nil {
			return err
		}
	} else {
		keys, err := b.keyStore(ctx)
		if err != nil {
			return err
		}
		result, err = service.NewGrader(cat, keys, opts...).Grade(ctx, req)
		if err != nil {
			return err
		}
	}

	report := result.Report()
	return printer.Render(report, func(w io.Writer) {
		if report.Passed() {
			printer.Success("%s score: %d/%d", domain, report.Score, rubric.MaxScore)
		} else {
			printer.Warn("%s score: %d/%d", domain, report.Score, rubric.MaxScore)
		}
		for _, line := range report.Feedback {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	})
}

func readSubmission(path string) (*rubric.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	sub, err := rubric.ParseSubmission(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sub, nil
}

func passphrase(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("passphrase"); v != "" {
		return v
	}
	return cfg.Keys.Passphrase
}

func traineeName(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("trainee"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}
