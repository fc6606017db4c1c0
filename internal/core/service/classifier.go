package service

import (
	"regexp"
	"strings"

	"github.com/fieldops/dispatch/internal/core/domain"
)

// Classifier maps a raw inbound message to a typed intent. The default
// implementation is a fixed keyword table; the interface exists so a
// smarter classifier can replace it without touching the state machine.
type Classifier interface {
	Classify(msg *domain.InboundMessage) domain.Intent
}

type keywordRule struct {
	pattern *regexp.Regexp
	action  domain.Action
}

type keywordClassifier struct {
	rules      []keywordRule
	taskRef    *regexp.Regexp
	buttonForm *regexp.Regexp
}

// buttonActions maps structured button payload tokens to actions.
var buttonActions = map[string]domain.Action{
	"accept":  domain.ActionAccept,
	"decline": domain.ActionDecline,
	"started": domain.ActionStarted,
	"onway":   domain.ActionOnWay,
	"arrived": domain.ActionArrived,
	"done":    domain.ActionDone,
	"delay":   domain.ActionDelay,
	"issue":   domain.ActionIssue,
}

// NewKeywordClassifier builds the default rule-table classifier. Rules are
// ordered; the first family that matches wins.
func NewKeywordClassifier() Classifier {
	families := []struct {
		expr   string
		action domain.Action
	}{
		{`(?i)\b(accept|confirm|yes|sure|okay|ok|on it|will do|got it)\b`, domain.ActionAccept},
		{`(?i)\b(decline|reject|no|cannot|can't|won't|unable|not available)\b`, domain.ActionDecline},
		{`(?i)\b(done|finished|completed|complete|wrapped up)\b`, domain.ActionDone},
		{`(?i)\b(started|beginning|working on|in progress)\b`, domain.ActionStarted},
		{`(?i)\b(on my way|on the way|heading there|en route)\b`, domain.ActionOnWay},
		{`(?i)\b(arrived|here|at the location|on site)\b`, domain.ActionArrived},
		{`(?i)\b(running late|will be late|delayed|need more time)\b`, domain.ActionDelay},
		{`(?i)\b(issue|problem|trouble|blocked|can't access)\b`, domain.ActionIssue},
	}

	rules := make([]keywordRule, 0, len(families))
	for _, f := range families {
		rules = append(rules, keywordRule{
			pattern: regexp.MustCompile(f.expr),
			action:  f.action,
		})
	}

	return &keywordClassifier{
		rules:      rules,
		taskRef:    regexp.MustCompile(`#([A-Za-z0-9]{8})\b`),
		buttonForm: regexp.MustCompile(`^([a-z]+)_(.+)$`),
	}
}

func (c *keywordClassifier) Classify(msg *domain.InboundMessage) domain.Intent {
	switch {
	case msg.Type == domain.MessageTypeButton && msg.Button != nil:
		return c.classifyButton(msg.Button.Payload)

	case msg.Type == domain.MessageTypeLocation && msg.Location != nil:
		return domain.Intent{
			Action:   domain.ActionLocationUpdate,
			Location: &domain.GeoPoint{Lat: msg.Location.Lat, Lng: msg.Location.Lng},
		}

	case msg.Type.IsMedia():
		return domain.Intent{Action: domain.ActionMedia}

	case msg.Type == domain.MessageTypeText && msg.Text != nil:
		return c.classifyText(msg.Text.Body)
	}
	return domain.Intent{Action: domain.ActionUnknown}
}

func (c *keywordClassifier) classifyButton(payload string) domain.Intent {
	m := c.buttonForm.FindStringSubmatch(payload)
	if m == nil {
		return domain.Intent{Action: domain.ActionUnknown, Description: payload}
	}
	action, ok := buttonActions[m[1]]
	if !ok {
		return domain.Intent{Action: domain.ActionUnknown, Description: payload}
	}
	return domain.Intent{Action: action, TaskRef: m[2]}
}

func (c *keywordClassifier) classifyText(body string) domain.Intent {
	intent := domain.Intent{Action: domain.ActionUnknown, Description: body}

	if m := c.taskRef.FindStringSubmatch(body); m != nil {
		intent.TaskRef = strings.ToUpper(m[1])
	}
	for _, rule := range c.rules {
		if rule.pattern.MatchString(body) {
			intent.Action = rule.action
			break
		}
	}
	return intent
}
