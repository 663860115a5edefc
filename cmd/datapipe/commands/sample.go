package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qxlabai/datapipe/pkg/cli"
)

var sampleForce bool

const defaultSamplePath = "datapipe.sample.yaml"

// sampleConfig is a documented starter job. It must stay parseable by
// pipeline.FromFile.
const sampleConfig = `# datapipe job config.
#
# Every stage except load is optional; a stage left out is skipped.
# Run with: datapipe pipeline run <this file>

load:
  # Hugging Face datasets, fetched through the datasets server API.
  huggingface:
    - path: tatsu-lab/alpaca
      # name: default
      # split: train
      # token: $HF_TOKEN
      # take_rows: 1000
      # cache_dir: .cache/datasets
  # Local files: csv, json, jsonl or parquet.
  local:
    - path: corpus/extra.jsonl
  # Optional jq filter applied to every row.
  # query: 'select(.instruction != "")'

format:
  # Merge prompt columns into one question column before detection.
  merger:
    user:
      fields: [instruction, input]
      separator: "\n"
      merged_field: question
    remove_other_cols: true
  # Map columns to chat roles for instruction data.
  sft:
    column_role_map:
      question: user
      output: assistant
  # Render message lists back to text for deduplication and judging.
  textualize: true

deduplicate:
  semantic:
    column: messages
    threshold: 0.2

analyze:
  quality:
    column_name: messages
    categories: [chat, code, math, other]

save:
  directory: processed
  filetype: parquet

# Models used by the stages above. API keys given as $VAR resolve from
# the environment.
judge:
  credentials:
    - base_url: https://api.openai.com/v1
      api_key: $OPENAI_API_KEY
  model: gpt-4o-mini
  # max_attempts: 3

embeddings:
  base_url: https://api.openai.com/v1
  api_key: $OPENAI_API_KEY
  model: text-embedding-3-small
  cache_dir: .cache/embeddings
`

var pipelineSampleCmd = &cobra.Command{
	Use:   "sample [file]",
	Short: "Write a documented starter config",
	Long: `Write a documented starter config to edit into your own job.

Defaults to ` + defaultSamplePath + ` in the current directory.

Examples:
  datapipe pipeline sample
  datapipe pipeline sample job.yaml
  datapipe pipeline sample job.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultSamplePath
		if len(args) > 0 {
			path = args[0]
		}

		if _, err := os.Stat(path); err == nil {
			if !sampleForce {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			cli.PrintWarning("Overwriting %s", path)
		}

		if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}

		cli.PrintSuccess("Wrote %s", path)
		cli.PrintInfo("Edit it, then run: datapipe pipeline run %s", path)
		return nil
	},
}

func init() {
	pipelineSampleCmd.Flags().BoolVar(&sampleForce, "force", false, "overwrite an existing file")
	pipelineCmd.AddCommand(pipelineSampleCmd)
}
