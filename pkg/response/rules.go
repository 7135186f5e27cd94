package response

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// Rule pairs a predicate with the replies used when it matches.
type Rule struct {
	Category string
	Match    func(normalized string) bool
	Replies  []string
}

// Reply is the rule-based responder's answer.
type Reply struct {
	Category string
	Text     string
}

// Keywords matches when any phrase occurs on word boundaries.
func Keywords(phrases ...string) func(string) bool {
	return func(normalized string) bool {
		return containsAny(normalized, phrases)
	}
}

// DefaultCategory is the category of the fallback reply.
const DefaultCategory = "default"

// DefaultRules is the ordered rule table. Crisis language is checked first
// and anxiety ahead of hopelessness, so "anxious and want to give up"
// gets coping help rather than the generic reply.
var DefaultRules = []Rule{
	{
		Category: "crisis",
		Match:    IsCrisisNormalized,
		Replies:  []string{CrisisMessage},
	},
	{
		Category: "anxiety",
		Match: Keywords("anxious", "anxiety", "panic", "panicking", "worried", "worry", "worrying",
			"nervous", "stressed", "stress", "overwhelmed", "on edge", "freaking out"),
		Replies: []string{
			"That sounds really stressful. Let's slow things down together: breathe in for four counts, hold for four, and out for six. Want to try it a few times with me?",
			"Anxiety can make everything feel urgent. Try naming five things you can see and four you can hear. It helps bring your mind back to the present.",
			"I hear how on edge you're feeling. What's one small thing that's in your control right now? We can start there.",
		},
	},
	{
		Category: "hopeless",
		Match:    Keywords("give up", "giving up", "hopeless", "pointless", "no point", "can't do this", "cant do this"),
		Replies: []string{
			"It sounds like you're carrying a lot right now. You don't have to solve everything today. What's one tiny step that would make the next hour a little easier?",
			"Feeling like giving up usually means you've been trying hard for a long time. Would it help to talk through what's weighing on you most?",
		},
	},
	{
		Category: "sadness",
		Match:    Keywords("sad", "down", "depressed", "lonely", "alone", "crying", "cry", "upset", "miserable", "heartbroken"),
		Replies: []string{
			"I'm sorry you're feeling this way. It's okay to feel sad. Would you like to tell me more about what's going on?",
			"That sounds hard. Being gentle with yourself matters right now. Is there someone you trust you could reach out to today?",
		},
	},
	{
		Category: "anger",
		Match:    Keywords("angry", "mad", "furious", "frustrated", "annoyed", "irritated", "pissed"),
		Replies: []string{
			"It makes sense to feel frustrated. Try unclenching your jaw and dropping your shoulders, then take a slow breath. What set it off?",
			"Anger often points at something that matters to you. Want to talk about what happened?",
		},
	},
	{
		Category: "tired",
		Match:    Keywords("tired", "exhausted", "sleepy", "can't sleep", "cant sleep", "insomnia", "drained", "burned out", "burnt out"),
		Replies: []string{
			"Your body might be asking for rest. Even a short break away from screens can help. When did you last take a real pause?",
			"Being worn out makes everything heavier. A glass of water and a few slow breaths can be a good reset.",
		},
	},
	{
		Category: "habits",
		Match:    Keywords("habit", "habits", "streak", "routine", "exercise", "workout", "meditate", "meditation", "water", "journal", "journaling"),
		Replies: []string{
			"Small steady habits add up. What's one habit you'd like to keep going today?",
			"Nice that you're thinking about your routine. Consistency beats intensity, so even five minutes counts.",
		},
	},
	{
		Category: "positive",
		Match:    Keywords("happy", "great", "good", "better", "proud", "excited", "grateful", "calm", "relaxed", "amazing"),
		Replies: []string{
			"I love hearing that! What do you think helped you feel this way?",
			"That's wonderful. Take a moment to really notice that feeling.",
		},
	},
}

var defaultReplies = []string{
	"Thank you for sharing that with me. I'm here to listen. How are you feeling right now?",
	"I'm here for you. Tell me a bit more about what's on your mind.",
	"I hear you. What would feel most helpful right now, talking it through or trying a quick calming exercise?",
}

// RuleResponder is the deterministic last tier. It cannot fail.
type RuleResponder struct {
	rules    []Rule
	fallback []string
}

// NewRuleResponder creates a responder over rules, or DefaultRules when none are given.
func NewRuleResponder(rules ...Rule) *RuleResponder {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &RuleResponder{rules: rules, fallback: defaultReplies}
}

// Respond evaluates the table top to bottom and returns the first match.
// The reply within a category is chosen by a hash of the input, so the same
// text always gets the same answer.
func (r *RuleResponder) Respond(text string) Reply {
	n := normalize(text)
	for _, rule := range r.rules {
		if len(rule.Replies) > 0 && rule.Match(n) {
			return Reply{Category: rule.Category, Text: pick(rule.Replies, n)}
		}
	}
	return Reply{Category: DefaultCategory, Text: pick(r.fallback, n)}
}

// IsCrisisNormalized is IsCrisis for already normalized text.
func IsCrisisNormalized(normalized string) bool {
	return containsAny(normalized, crisisPhrases)
}

func pick(replies []string, key string) string {
	h := fnv.New32a()
	h.Write([]byte(key))
	return replies[h.Sum32()%uint32(len(replies))]
}

// normalize lowercases text, folds apostrophes away and turns everything
// that is not a letter or digit into single spaces, padded on both ends.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsAny(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, " "+strings.ReplaceAll(p, "'", "")+" ") {
			return true
		}
	}
	return false
}
