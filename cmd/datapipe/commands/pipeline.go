package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/qxlabai/datapipe/pkg/cli"
	"github.com/qxlabai/datapipe/pkg/pipeline"
)

var (
	listJSON   bool
	listOutput string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Inspect and run dataset pipelines",
	Long: `Inspect and run dataset pipelines.

A pipeline is one or more job configs. Point the subcommands at a single
YAML or JSON file, or at a directory holding several.

Examples:
  datapipe pipeline sample job.yaml
  datapipe pipeline list job.yaml
  datapipe pipeline list configs/ --json
  datapipe pipeline run configs/`,
}

var pipelineListCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "Show the jobs a config file or directory describes",
	Long: `Show the jobs a config file or directory describes.

Directories are merged the same way 'run' merges them, so the listing is
exactly what a run would execute. Use --json for machine-readable output
or -o to export the merged pipeline to a file.

Examples:
  datapipe pipeline list job.yaml
  datapipe pipeline list configs/ --json
  datapipe pipeline list configs/ -o merged.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline(args[0])
		if err != nil {
			return err
		}

		if listJSON {
			return cli.Output(p, cli.OutputOptions{Format: cli.FormatJSON, File: listOutput})
		}
		if listOutput != "" {
			return cli.Output(p, cli.OutputOptions{Format: cli.FormatYAML, File: listOutput})
		}

		styles := cli.NewStyles(cli.DefaultTheme)
		fmt.Println(styles.Label.Render(fmt.Sprintf("Jobs: %d", len(p.Jobs))))
		for i, job := range p.Jobs {
			fmt.Println(styles.Border.Render(strings.Repeat("─", 40)))
			fmt.Println(styles.Title.Render(fmt.Sprintf("Job %d", i+1)))
			body, err := yaml.Marshal(job)
			if err != nil {
				return fmt.Errorf("render job %d: %w", i+1, err)
			}
			fmt.Println(indent(string(body), "  "))
		}
		fmt.Println(styles.Help.Render("Run with: datapipe pipeline run " + args[0]))
		return nil
	},
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Run the jobs of a config file or directory",
	Long: `Run the jobs of a config file or directory.

Jobs run one after another. A failing job is reported and the remaining
jobs still run; the command exits non-zero if any job failed. Ctrl-C
stops after the current stage.

Examples:
  datapipe pipeline run job.yaml
  datapipe pipeline run configs/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadPipeline(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		cli.PrintInfo("Running %d job(s) from %s", len(p.Jobs), args[0])
		start := time.Now()
		if err := p.Run(ctx); err != nil {
			return err
		}
		cli.PrintSuccess("Pipeline finished in %s", cli.FormatDuration(int(time.Since(start).Milliseconds())))
		return nil
	},
}

// loadPipeline reads job configs from a single file, or from every config
// file directly under a directory.
func loadPipeline(path string) (*pipeline.Pipeline, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return pipeline.FromDir(path)
	}
	return pipeline.FromFile(path)
}

// indent prefixes every non-empty line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func init() {
	pipelineListCmd.Flags().BoolVar(&listJSON, "json", false, "print jobs as JSON")
	pipelineListCmd.Flags().StringVarP(&listOutput, "output", "o", "", "write to file instead of stdout")

	pipelineCmd.AddCommand(pipelineListCmd, pipelineRunCmd)
	rootCmd.AddCommand(pipelineCmd)
}
