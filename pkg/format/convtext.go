package format

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/qxlabai/datapipe/pkg/chat"
	"github.com/qxlabai/datapipe/pkg/dataset"
	"github.com/qxlabai/datapipe/pkg/judge"
)

// ConvTextConfig configures detection of conversations that were
// flattened into a single text column.
type ConvTextConfig struct {
	// Column holding the flattened conversation. When empty the judge
	// proposes candidate columns.
	Column string `json:"column,omitempty" yaml:"column,omitempty"`

	// Template describing how the turns are laid out in the text, with
	// {system}, {user} and {assistant} placeholders. When empty the
	// judge proposes templates from a sampled value.
	Template string `json:"conv_template,omitempty" yaml:"conv_template,omitempty"`
}

type convTextStage struct {
	cfg   *ConvTextConfig
	judge judge.Completer

	// tpl is the pre-validated template when both column and template
	// are configured. Configured templates are trusted; only judge
	// proposals get screened against a sampled value.
	tpl *chat.Template
}

func newConvText(cfg *ConvTextConfig, j judge.Completer) (*convTextStage, error) {
	if j == nil && (cfg.Column == "" || cfg.Template == "") {
		return nil, errors.New("format: conv_text: a judge is required unless both column and conv_template are set")
	}
	s := &convTextStage{cfg: cfg, judge: j}
	if cfg.Column != "" && cfg.Template != "" {
		tpl, err := roleTemplate(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("format: conv_text: %w", err)
		}
		s.tpl = tpl
	}
	return s, nil
}

func (s *convTextStage) Name() string { return "conv_text" }

// Detect resolves candidate columns and a working template per column.
// Proposed templates are screened against the sampled value; of the
// proposals that survive, the last one accepted wins.
func (s *convTextStage) Detect(ctx context.Context, ds *dataset.Dataset) (*Transform, error) {
	rec := ds.Sample()
	if rec == nil {
		return nil, nil
	}
	candidates := []string{s.cfg.Column}
	if s.cfg.Column == "" {
		var err error
		candidates, err = s.judgeColumns(ctx, ds.Columns(), rec)
		if err != nil {
			if errors.Is(err, judge.ErrFiltered) {
				return nil, nil
			}
			return nil, err
		}
	}
	var cols []string
	tpls := make(map[string]*chat.Template)
	for _, col := range ds.Columns() {
		if !slices.Contains(candidates, col) {
			continue
		}
		sample, ok := rec[col].(string)
		if !ok {
			continue
		}
		if s.tpl != nil {
			cols = append(cols, col)
			tpls[col] = s.tpl
			continue
		}
		raws, err := s.judgeTemplates(ctx, sample)
		if err != nil {
			if errors.Is(err, judge.ErrFiltered) {
				continue
			}
			return nil, err
		}
		seen := make(map[string]bool, len(raws))
		for _, raw := range raws {
			if seen[raw] {
				continue
			}
			seen[raw] = true
			tpl, ok := acceptTemplate(raw, sample)
			if !ok {
				continue
			}
			if _, dup := tpls[col]; !dup {
				cols = append(cols, col)
			}
			tpls[col] = tpl
		}
	}
	if len(cols) == 0 {
		return nil, nil
	}
	return &Transform{
		MessageColumns: slices.Clone(cols),
		Apply: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
			return ds.Map(func(r dataset.Record) (map[string]any, error) {
				out := make(map[string]any, len(cols))
				for _, col := range cols {
					text, ok := r[col].(string)
					if !ok {
						return nil, fmt.Errorf("column %q: value is not text", col)
					}
					out[col] = templateMessages(tpls[col], text)
				}
				return out, nil
			})
		},
	}, nil
}

// acceptTemplate compiles a proposed template and screens it against
// the sampled text.
func acceptTemplate(raw, sample string) (*chat.Template, bool) {
	tpl, err := roleTemplate(raw)
	if err != nil {
		return nil, false
	}
	if len(tpl.Match(sample)) == 0 {
		return nil, false
	}
	return tpl, true
}

// roleTemplate compiles a template whose placeholders must form a
// usable role combination; a template carrying only system and
// assistant is rewritten to treat the system part as the user turn.
func roleTemplate(raw string) (*chat.Template, error) {
	tpl, err := chat.ParseTemplate(raw)
	if err != nil {
		return nil, err
	}
	set := make(map[chat.Role]bool, len(tpl.Fields()))
	for _, name := range tpl.Fields() {
		role, err := chat.ParseRole(name)
		if err != nil {
			return nil, err
		}
		set[role] = true
	}
	switch {
	case len(set) == 3:
	case len(set) == 2 && set[chat.RoleUser] && set[chat.RoleAssistant]:
	case len(set) == 2 && set[chat.RoleSystem] && set[chat.RoleAssistant]:
		return chat.ParseTemplate(strings.ReplaceAll(raw, "{system}", "{user}"))
	default:
		return nil, fmt.Errorf("template %q: placeholders do not form a conversation", raw)
	}
	return tpl, nil
}

// templateMessages reverse-applies the template to one row's text,
// ordering the recovered turns system, user, assistant. Text the
// template does not match yields no messages.
func templateMessages(tpl *chat.Template, text string) []chat.Message {
	fields := tpl.Match(text)
	msgs := make([]chat.Message, 0, len(fields))
	for _, role := range chat.Roles {
		if v, ok := fields[string(role)]; ok {
			msgs = append(msgs, chat.Message{Role: role, Content: v})
		}
	}
	return msgs
}

func (s *convTextStage) judgeColumns(ctx context.Context, cols []string, rec dataset.Record) ([]string, error) {
	sample, err := recordJSON(cols, rec)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(convTextColumnShots)+2)
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: convTextColumnPrompt})
	msgs = append(msgs, convTextColumnShots...)
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: sample})
	answers, err := s.judge.Complete(ctx, judge.Request{
		Messages:    msgs,
		N:           2,
		MaxAttempts: judge.Attempts(3),
	})
	if err != nil {
		return nil, fmt.Errorf("format: conv_text: judge: %w", err)
	}
	var keys []string
	for _, a := range answers {
		if _, ok := rec[a]; ok {
			keys = append(keys, a)
		}
	}
	return keys, nil
}

func (s *convTextStage) judgeTemplates(ctx context.Context, text string) ([]string, error) {
	msgs := make([]chat.Message, 0, len(convTextTemplateShots)+2)
	msgs = append(msgs, chat.Message{Role: chat.RoleSystem, Content: convTextTemplatePrompt})
	msgs = append(msgs, convTextTemplateShots...)
	msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: text})
	answers, err := s.judge.Complete(ctx, judge.Request{
		Messages:    msgs,
		N:           5,
		MaxAttempts: judge.Attempts(3),
	})
	if err != nil {
		return nil, fmt.Errorf("format: conv_text: judge: %w", err)
	}
	return answers, nil
}

const convTextColumnPrompt = "You are a smart assistant who can find a conversational dialogue in a given JSON/dictionary. You have to just give the key for which the value looks the most like a conversational dialogue or question answer or a back and forth between two/three parties."

var convTextColumnShots = []chat.Message{
	{Role: chat.RoleUser, Content: `{'id': 'flan.450764',
 'system_prompt': 'You are an AI assistant. User will you give you a task. Your goal is to complete the task as faithfully as you can. While performing the task think step-by-step and justify your steps.',
 'question': 'Victims of domestic violence will have access to quality legal representation through a campaign undertaken by Idaho Supreme Court Chief Justice Linda Copple Trout and corporate leaders. "Thousands of times a year, Idahoans are victims of domestic violence. The victims are often women and their children and they frequently have few resources with which to pursue their legal rights," Trout said Tuesday. "This campaign helps fill that gap in legal services for women who need the help at a time when they are in crisis." The Idaho Partners for Justice Project has already secured pledges of more than $35,000 from law firms, attorneys, corporations and individuals. The goal is $100,000. The drive to pay for free legal services will continue for the next two months. The money goes to Idaho Legal Aid Services and the Idaho Volunteer Lawyers Program. Last year, more than 5,000 petitions were filed in Idaho for protection orders in domestic violence cases. More than 12,000 victims contacted shelters or crisis hotlines. Joining Trout in the announcement was Idaho Bar Association President Fred Hoopes of Idaho Falls and Ida-West Energy Co. Chief Executive Officer Randy Hill, members of the project\'s executive committee. Also on hand were some women who were victims of such violence, but benefited from free legal services. Last year\'s campaign generated enough money and resources to help more than 450 victims. The help ranged from representation in protection order hearings to legal assistance in divorce, visitation and child support cases. The donations are tax deductible. \n\nBased on the paragraph, does the response "Police Chief Bob Ackerman and Victim\'s Advocate Katherine Gonzalez" correctly answer the question "Who joined the Idaho Supreme Court Justice in making the announcement?"?',
 'response': 'Based on the paragraph, the response "Police Chief Bob Ackerman and Victim\'s Advocate Katherine Gonzalez" does not correctly answer the question "Who joined the Idaho Supreme Court Justice in making the announcement?". The correct answer would be "Idaho Bar Association President Fred Hoopes of Idaho Falls and Ida-West Energy Co. Chief Executive Officer Randy Hill, members of the project\'s executive committee."',
 'messages': '<<SYS>> You are an AI assistant. User will you give you a task. Your goal is to complete the task as faithfully as you can. While performing the task think step-by-step and justify your steps. <<SYS>>\n### Instruction: Victims of domestic violence will have access to quality legal representation through a campaign undertaken by Idaho Supreme Court Chief Justice Linda Copple Trout and corporate leaders. "Thousands of times a year, Idahoans are victims of domestic violence. The victims are often women and their children and they frequently have few resources with which to pursue their legal rights," Trout said Tuesday. "This campaign helps fill that gap in legal services for women who need the help at a time when they are in crisis." The Idaho Partners for Justice Project has already secured pledges of more than $35,000 from law firms, attorneys, corporations and individuals. The goal is $100,000. The drive to pay for free legal services will continue for the next two months. The money goes to Idaho Legal Aid Services and the Idaho Volunteer Lawyers Program. Last year, more than 5,000 petitions were filed in Idaho for protection orders in domestic violence cases. More than 12,000 victims contacted shelters or crisis hotlines. Joining Trout in the announcement was Idaho Bar Association President Fred Hoopes of Idaho Falls and Ida-West Energy Co. Chief Executive Officer Randy Hill, members of the project\'s executive committee. Also on hand were some women who were victims of such violence, but benefited from free legal services. Last year\'s campaign generated enough money and resources to help more than 450 victims. The help ranged from representation in protection order hearings to legal assistance in divorce, visitation and child support cases. The donations are tax deductible. \n\nBased on the paragraph, does the response "Police Chief Bob Ackerman and Victim\'s Advocate Katherine Gonzalez" correctly answer the question "Who joined the Idaho Supreme Court Justice in making the announcement?"?\n### Response: Based on the paragraph, the response "Police Chief Bob Ackerman and Victim\'s Advocate Katherine Gonzalez" does not correctly answer the question "Who joined the Idaho Supreme Court Justice in making the announcement?". The correct answer would be "Idaho Bar Association President Fred Hoopes of Idaho Falls and Ida-West Energy Co. Chief Executive Officer Randy Hill, members of the project\'s executive committee." <eos>'}`},
	{Role: chat.RoleAssistant, Content: "messages"},
	{Role: chat.RoleUser, Content: "{}"},
	{Role: chat.RoleAssistant, Content: "The given JSON/dictionary is empty. Hence, there is no key for conversational dialogue."},
	{Role: chat.RoleUser, Content: `{'text': 'Question: How does the process of oxidative decarboxylation of pyruvate contribute to the overall understanding of cellular respiration?\n\nAnswer: Oxidative decarboxylation of pyruvate is a crucial step in cellular respiration, as it generates energy in the form of ATP through the process of oxidative phosphorylation. This reaction occurs in the mitochondria and involves the transfer of electrons from pyruvate to coenzyme Q, which ultimately leads to the production of ATP. Additionally, the acetyl group produced during this process is used in the citric acid cycle, also known as the Krebs cycle or TCA cycle, where it is further metabolized to produce more ATP. Overall, the oxidative decarboxylation of pyruvate plays a central role in energy metabolism within cells.'}`},
	{Role: chat.RoleAssistant, Content: "text"},
}

const convTextTemplatePrompt = "You'll be given a text as input. You need to return a template of how to insert variable texts inside that template. \n\nThese are the variables: {system}, {user}, {assistant}\n\nYou should find patterns in the text that can be used to fill different variable texts for system, user and assistant. You only have to return the template placeholders in place of the actual text."

var convTextTemplateShots = []chat.Message{
	{Role: chat.RoleUser, Content: "Question: Considering the role of plants in animal nutrition, how do plants synthesize energy and store it within their structure?\n\nAnswer: Plants synthesize energy through the process of photosynthesis, using carbon dioxide from the air, water, and inorganic elements from the soil. Energy from sunlight is trapped and used in these synthetic processes. This energy is then stored as chemical energy within the plant, which animals can utilize for maintaining life and synthesizing their own body tissues."},
	{Role: chat.RoleAssistant, Content: "Question: {user}\n\nAnswer: {assistant}"},
	{Role: chat.RoleUser, Content: "<<SYS>> You are a helpful assistant, who always provide explanation. Think like you are answering to a five year old. <<SYS>>\n### Instruction: Bosna Hersek (BH) Başbakanı Adnan Terziç, Avrupa haritasında kara bir delik kalması halinde, AB ile bütünleşme sürecinin küresel anlamda tarihi bir örnek teşkil edemeyeceğini söyledi.\n\nTranslate to English\n\nEnglish:\n### Response: Bosnia and Herzegovina (BH) Prime Minister Adnan Terzic said that if there is a black hole in the European map, the integration process with the European Union (EU) cannot be a historic example in a global sense. <eos>"},
	{Role: chat.RoleAssistant, Content: "<<SYS>> {system} <<SYS>>\n### Instruction: {user}\n### Response: {assistant} <eos>"},
	{Role: chat.RoleUser, Content: "<<SYS>> You are an AI assistant. You will be given a task. You must generate a detailed and long answer. <<SYS>> [INST]  Outline the Imhotep theory [/INST] This theory was the famous Imhotep, the renowned ruler of the ancient kingdom of Kush.  He was a great ruler and led his kingdom very well.  The word „Ihotek”, which means “defence”, was used during his reign, but Ihsotek might have been the first thing of its own."},
	{Role: chat.RoleAssistant, Content: "<<SYS>> {system} <<SYS>> [INST] {user} [/INST] {assistant}"},
	{Role: chat.RoleUser, Content: "system\n You are a smart AI assistant. \n\nuser\n What temperature should I dial down my water heater to? \n\nassistant\n If you turn the water heater on at a lower temperature, then it will begin to heat up on a smaller scale.  There is a zone in the water heater that just starts to bubble, and it’s at the upper critical temperature.  After at that point, you should call the water heater’s service provider, or they may know that you should turn it up to fight its owner at the lower critical temperature."},
	{Role: chat.RoleAssistant, Content: "system\n {system} \n\nuser\n {user} \n\nassistant\n {assistant}"},
}
