package format

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/judge"
)

// SFTConfig configures the instruction-tuning detector.
type SFTConfig struct {
	// UseJudge asks the judge to identify the role columns instead of
	// walking the pattern table.
	UseJudge bool `json:"use_judge,omitempty" yaml:"use_judge,omitempty"`

	// ColumnRoleMap overrides the built-in pattern table. Order
	// matters: the first matching pattern claims a column. Roles are
	// system, user, and assistant.
	ColumnRoleMap PatternMap `json:"column_role_map,omitempty" yaml:"column_role_map,omitempty"`
}

type sftStage struct {
	cfg   *SFTConfig
	judge judge.Completer
	table *claimTable
}

func newSFT(cfg *SFTConfig, j judge.Completer) (*sftStage, error) {
	if cfg.UseJudge && j == nil {
		return nil, errors.New("format: sft: judge-assisted detection requires a judge")
	}
	pm := cfg.ColumnRoleMap
	if len(pm) == 0 {
		pm = defaultSFTPatterns
	}
	table, err := newClaimTable(pm, sftRoles)
	if err != nil {
		return nil, fmt.Errorf("format: sft: %w", err)
	}
	return &sftStage{cfg: cfg, judge: j, table: table}, nil
}

func (s *sftStage) Name() string { return "sft" }

// Detect binds one column per role and recognizes the dataset when
// both a user and an assistant column are bound.
func (s *sftStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	rec := ds.Sample()
	if rec == nil {
		return nil, nil
	}
	var bound map[string]string
	if s.cfg.UseJudge {
		var err error
		bound, err = s.judgeColumns(ctx, ds.Columns(), rec)
		if err != nil {
			if errors.Is(err, judge.ErrFiltered) {
				return nil, nil
			}
			return nil, err
		}
	} else {
		bound = s.table.Claim(ds.Columns())
	}
	if bound[string(chat.RoleUser)] == "" || bound[string(chat.RoleAssistant)] == "" {
		return nil, nil
	}
	return &Transform{
		MessageColumns: []string{"messages"},
		Apply: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return ds.Map(func(r dataset.Record) (map[string]any, error) {
				msgs := make([]chat.Message, 0, len(bound))
				for _, role := range chat.Roles {
					col, ok := bound[string(role)]
					if !ok {
						continue
					}
					msgs = append(msgs, chat.Message{Role: role, Content: chat.ContentString(r[col])})
				}
				return map[string]any{"messages": msgs}, nil
			})
		},
	}, nil
}

// sftProposal is the judge's answer: a column name per role, or null
// where the record has no such column.
type sftProposal struct {
	System    *string `json:"system"`
	User      *string `json:"user"`
	Assistant *string `json:"assistant"`
}

func (s *sftStage) judgeColumns(ctx context.Context, cols []string, rec dataset.Record) (map[string]string, error) {
	sample, err := recordJSON(cols, rec)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(sftJudgeShots)+2)
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: sftJudgePrompt})
	msgs = append(msgs, sftJudgeShots...)
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: sample})
	proposal, err := judge.CompleteJSON[sftProposal](ctx, s.judge, judge.Request{
		Messages:    msgs,
		MaxAttempts: judge.Attempts(3),
	})
	if err != nil {
		return nil, fmt.Errorf("format: sft: judge: %w", err)
	}
	bound := make(map[string]string, 3)
	for role, col := range map[string]*string{
		string(chat.RoleSystem):    proposal.System,
		string(chat.RoleUser):      proposal.User,
		string(chat.RoleAssistant): proposal.Assistant,
	} {
		if col == nil || *col == "" {
			continue
		}
		if _, ok := rec[*col]; !ok {
			continue
		}
		bound[role] = *col
	}
	return bound, nil
}

// recordJSON serializes a record to JSON preserving column order.
func recordJSON(cols []string, rec dataset.Record) (string, error) {
	ms := make(yaml.MapSlice, 0, len(cols))
	for _, c := range cols {
		if v, ok := rec[c]; ok {
			ms = append(ms, yaml.MapItem{Key: c, Value: v})
		}
	}
	b, err := dataset.MarshalValue(ms)
	if err != nil {
		return "", fmt.Errorf("format: serialize record: %w", err)
	}
	return string(b), nil
}

const sftJudgePrompt = "You are supposed to understand a given data and find the keys that correspond to system, user and assistant roles. If you don't find a key, just put `null` as value. Your response should be in the following format: \n\n{\"system\": \"key\", \"user\": \"key\", \"assistant\": \"key\"}. \n\nRemember that there should be one `user` and one `assistant` type key. If you don't find such key return `{}`."

var sftJudgeShots = []chat.Message{
	{Role: chat.RoleUser, Content: `{"id": "flan.564327", "system_prompt": "You are an AI assistant. You will be given a task. You must generate a detailed and long answer.", "question": "Generate an approximately fifteen-word sentence that describes all this data: Midsummer House eatType restaurant; Midsummer House food Chinese; Midsummer House priceRange moderate; Midsummer House customer rating 3 out of 5; Midsummer House near All Bar One", "response": "Midsummer House is a moderately priced Chinese restaurant with a 3/5 customer rating, located near All Bar One."}`},
	{Role: chat.RoleAssistant, Content: `{"system": "system_prompt", "user": "question", "assistant": "response"}`},
	{Role: chat.RoleUser, Content: `{"prompt": " How long will my leftovers keep refrigerated?", "response": "\n\n\n It’s hard to say how long the leftovers will keep.  They might last for a few days in the refrigerator, but they’ll keep for a few weeks once left."}`},
	{Role: chat.RoleAssistant, Content: `{"system": null, "user": "prompt", "assistant": "response"}`},
	{Role: chat.RoleUser, Content: `{"system": "", "human": "You will be given a definition of a task first, then some input of the task.\nThis task is about using the specified sentence and converting the sentence to Resource Description Framework (RDF) triplets of the form (subject, predicate object). The RDF triplets generated must be such that the triplets accurately capture the structure and semantics of the input sentence. The input is a sentence and the output is a list of triplets of the form [subject, predicate, object] that capture the relationships present in the sentence. When a sentence has more than 1 RDF triplet possible, the output must contain all of them.\n\nAFC Ajax (amateurs)'s ground is Sportpark De Toekomst where Ajax Youth Academy also play.\nOutput:", "gpt": "[\n  [\"AFC Ajax (amateurs)\", \"has ground\", \"Sportpark De Toekomst\"],\n  [\"Ajax Youth Academy\", \"plays at\", \"Sportpark De Toekomst\"]\n]"}`},
	{Role: chat.RoleAssistant, Content: `{"system": null, "user": "human", "assistant": "gpt"}`},
	{Role: chat.RoleUser, Content: `{"system": "", "question": "You will be given a definition of a task first, then some input of the task.\nThis task is about using the specified sentence and converting the sentence to Resource Description Framework (RDF) triplets of the form (subject, predicate object). The RDF triplets generated must be such that the triplets accurately capture the structure and semantics of the input sentence. The input is a sentence and the output is a list of triplets of the form [subject, predicate, object] that capture the relationships present in the sentence. When a sentence has more than 1 RDF triplet possible, the output must contain all of them.\n\nAFC Ajax (amateurs)'s ground is Sportpark De Toekomst where Ajax Youth Academy also play.\nOutput:", "chosen": "[\n  [\"AFC Ajax (amateurs)\", \"has ground\", \"Sportpark De Toekomst\"],\n  [\"Ajax Youth Academy\", \"plays at\", \"Sportpark De Toekomst\"]\n]", "rejected": " Sure, I'd be happy to help! Here are the RDF triplets for the input sentence:\n\n[AFC Ajax (amateurs), hasGround, Sportpark De Toekomst]\n[Ajax Youth Academy, playsAt, Sportpark De Toekomst]\n\nExplanation:\n\n* AFC Ajax (amateurs) is the subject of the first triplet, and hasGround is the predicate that describes the relationship between AFC Ajax (amateurs) and Sportpark De Toekomst.\n* Ajax Youth Academy is the subject of the second triplet, and playsAt is the predicate that describes the relationship between Ajax Youth Academy and Sportpark De Toekomst.\n\nNote that there may be other possible RDF triplets that could be derived from the input sentence, but the above triplets capture the main relationships present in the sentence."}`},
	{Role: chat.RoleAssistant, Content: `{}`},
}
