// Package facts implements the Fact Extractor (Module B) and the Facts
// Store (Module C): deterministic regex-table extraction of recallable
// facts from an exchange, and their append-as-reinforcement persistence.
package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"assistantcore/internal/types"
)

// Candidate is an extracted fact before it is assigned an id/timestamp and
// written to the store.
type Candidate struct {
	Type        types.FactType
	Content     string
	Context     string
	Importance  float64
	Tags        []string
	Metadata    map[string]string
	Fingerprint string
}

type pattern struct {
	typ       types.FactType
	re        *regexp.Regexp
	minLength int
	window    int
	source    sourceScope // which text the pattern runs over
}

type sourceScope int

const (
	scopeFull sourceScope = iota
	scopeUser
	scopeAgent
)

// patterns mirrors the per-type regex table from the original prototype,
// translated to Go's RE2 syntax (no lookaround, no backreferences).
var patterns = []pattern{
	{types.FactAppointment, regexp.MustCompile(`(?i)(?:meeting|appointment|call|interview|event|conference)(?:\s+(?:with|at|on))?\s+([^.,;\n]+)`), 5, 100, scopeFull},
	{types.FactTask, regexp.MustCompile(`(?i)(?:todo|task|need to|should|must|have to|remember to|action item|followup)\s+([^.,;\n]+)`), 5, 100, scopeUser},
	{types.FactContact, regexp.MustCompile(`(?:email|call|contact|reach out to|talk to|meet with|spoke with)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`), 2, 100, scopeFull},
	{types.FactNote, regexp.MustCompile(`(?i)(?:note|remember|important|don't forget|fyi|heads up):\s*([^.;\n]+)`), 5, 100, scopeFull},
	{types.FactLocation, regexp.MustCompile(`(?:at|in|near|on)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*(?:\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Building|Office|Restaurant|Cafe|Hotel))?)`), 3, 100, scopeFull},
	{types.FactPreference, regexp.MustCompile(`(?i)(?:i |I )?(?:prefer|like|love|want|need|always|never|favorite|hate|dislike)\s+([^.,;\n]+)`), 5, 100, scopeUser},
	{types.FactCommunication, regexp.MustCompile(`(?i)(?:email|message|text|chat|call)(?:ed|ing)?\s+(?:to\s+)?([^.,;\n]+)`), 10, 100, scopeFull},
	{types.FactToolUse, regexp.MustCompile(`(?i)(?:called|using|executed|created|generated|sent|uploaded)\s+(\w+)\s+(?:tool|document|email|image|video)`), 5, 100, scopeAgent},
	{types.FactURL, regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`), 0, 50, scopeFull},
	{types.FactCommand, regexp.MustCompile(`(?m)(?:^|\n)\$\s*([^\n]+)`), 3, 100, scopeFull},
	{types.FactCode, regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```"), 10, 100, scopeFull},
	{types.FactFile, regexp.MustCompile(`(?:/[\w\-.]+)+(?:\.\w+)?`), 5, 50, scopeFull},
	{types.FactError, regexp.MustCompile(`(?i)(?:Error|Exception|Failed|WARNING):\s*([^\n]+)`), 10, 100, scopeFull},
}

var emailSentPattern = regexp.MustCompile(`(?i)(?:✅|✓)?\s*(?:\*\*)?Email\s+(?:sent|delivered)\s+(?:successfully\s+)?(?:to\s+)?([^\n]+)`)

var (
	temporalKeywords = []string{"today", "tomorrow", "urgent", "asap", "now", "immediately", "deadline"}
	criticalKeywords = []string{"critical", "important", "must", "required", "vital", "essential"}
)

var typeWeights = map[types.FactType]float64{
	types.FactAppointment:    0.8,
	types.FactContact:        0.7,
	types.FactPreference:     0.7,
	types.FactTask:           0.8,
	types.FactNote:           0.7,
	types.FactLocation:       0.6,
	types.FactRecommendation: 0.7,
	types.FactRoutine:        0.6,
	types.FactHealth:         0.8,
	types.FactFinancial:      0.8,
	types.FactCommunication:  0.8,
	types.FactToolUse:        0.7,
	types.FactCommand:        0.3,
	types.FactCode:           0.4,
	types.FactFile:           0.3,
	types.FactURL:            0.5,
	types.FactError:          0.5,
	types.FactConfig:         0.4,
}

var techKeywords = map[string][]string{
	"docker":     {"docker", "container"},
	"python":     {"python", "py", "pip"},
	"javascript": {"javascript", "js", "npm", "node"},
	"git":        {"git", "commit", "push", "pull"},
	"database":   {"database", "sql", "postgres", "sqlite"},
}

var falsePositiveFragments = []string{"//", "/.", "/etc/"}

// Extract runs the full fact-extraction procedure over one exchange. It is
// deterministic and side-effect-free; malformed or empty input yields an
// empty slice, never an error.
func Extract(userText, agentText string) []Candidate {
	fullText := userText + "\n" + agentText
	var out []Candidate

	for _, p := range patterns {
		text := fullText
		switch p.source {
		case scopeUser:
			text = userText
		case scopeAgent:
			text = agentText
		}
		if text == "" {
			continue
		}

		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if p.typ == types.FactCode {
				lang := "unknown"
				if len(m) >= 4 && m[2] >= 0 && m[3] > m[2] {
					if l := strings.TrimSpace(text[m[2]:m[3]]); l != "" {
						lang = l
					}
				}
				body := ""
				if len(m) >= 6 && m[4] >= 0 {
					body = strings.TrimSpace(text[m[4]:m[5]])
				}
				if len(body) <= p.minLength {
					continue
				}
				out = append(out, newCandidate(p.typ, body, context(text, m[0], m[1], p.window), map[string]string{"language": lang}))
				continue
			}

			var content string
			if len(m) >= 4 && m[2] >= 0 {
				content = strings.TrimSpace(text[m[2]:m[3]])
			} else {
				content = strings.TrimSpace(text[m[0]:m[1]])
			}
			if p.typ == types.FactFile && !looksLikeFilePath(content) {
				continue
			}
			if len(content) <= p.minLength {
				continue
			}

			out = append(out, newCandidate(p.typ, content, context(text, m[0], m[1], p.window), nil))
		}
	}

	for _, m := range emailSentPattern.FindAllStringSubmatchIndex(agentText, -1) {
		if m[2] < 0 {
			continue
		}
		recipient := strings.TrimSpace(agentText[m[2]:m[3]])
		recipient = strings.NewReplacer("**", "", "__", "", "~~", "").Replace(recipient)
		fields := strings.Fields(recipient)
		if len(fields) == 0 {
			continue
		}
		c := newCandidate(types.FactCommunication, "Email sent to "+fields[0], context(agentText, m[0], m[1], 100), nil)
		c.Importance = 0.9
		out = append(out, c)
	}

	return out
}

func newCandidate(t types.FactType, content, ctx string, metadata map[string]string) Candidate {
	return Candidate{
		Type:        t,
		Content:     content,
		Context:     ctx,
		Importance:  calculateImportance(t, content),
		Tags:        generateTags(t, content, metadata),
		Metadata:    metadata,
		Fingerprint: fingerprint(content),
	}
}

func context(text string, start, end, window int) string {
	s := start - window
	if s < 0 {
		s = 0
	}
	e := end + window
	if e > len(text) {
		e = len(text)
	}
	ctx := text[s:e]
	if len(ctx) > 500 {
		ctx = ctx[:500] + "..."
	}
	return ctx
}

func looksLikeFilePath(path string) bool {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return false
	}
	if len(path) < 5 {
		return false
	}
	for _, fp := range falsePositiveFragments {
		if strings.Contains(path, fp) {
			return false
		}
	}
	return true
}

func calculateImportance(t types.FactType, content string) float64 {
	importance, ok := typeWeights[t]
	if !ok {
		importance = 0.5
	}
	lower := strings.ToLower(content)

	if containsAny(lower, temporalKeywords) {
		importance = clamp01(importance + 0.2)
	}
	if containsAny(lower, criticalKeywords) {
		importance = clamp01(importance + 0.1)
	}
	if strings.Contains(content, "!") || isUppercase(content) {
		importance = clamp01(importance + 0.1)
	}
	return importance
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isUppercase(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func generateTags(t types.FactType, content string, metadata map[string]string) []string {
	tags := []string{string(t)}
	if t == types.FactCode {
		if lang, ok := metadata["language"]; ok && lang != "" {
			tags = append(tags, lang)
		}
	}
	lower := strings.ToLower(content)
	for tag, keywords := range techKeywords {
		if containsAny(lower, keywords) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// fingerprint computes a stable hash of normalized lowercase content, used
// to detect repeated facts - repetition is meaningful as reinforcement, not
// deduplicated away, per spec.md §3's Fact invariant.
func fingerprint(content string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(content))))
	return hex.EncodeToString(sum[:])
}
