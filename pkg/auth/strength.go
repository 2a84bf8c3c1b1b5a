package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RuleID identifies a strength rule violation. IDs are stable and safe to
// return to clients.
type RuleID string

const (
	RuleInsufficientLength RuleID = "insufficient_length"
	RuleMissingUppercase   RuleID = "missing_uppercase"
	RuleMissingLowercase   RuleID = "missing_lowercase"
	RuleMissingDigit       RuleID = "missing_digit"
	RuleMissingSpecial     RuleID = "missing_special"
	RuleRepeatedCharacters RuleID = "repeated_characters"
	RuleCommonPassword     RuleID = "common_password"
	RuleContainsUsername   RuleID = "contains_username"
	RuleContainsEmail      RuleID = "contains_email"
	RuleBelowMinimumTier   RuleID = "below_minimum_tier"
)

// StrengthContext is the identity a candidate password is checked against.
// Both fields are optional.
type StrengthContext struct {
	Username string
	Email    string
}

// Violation is one rule finding. Blocking violations make a password unacceptable.
type Violation struct {
	Rule     RuleID
	Blocking bool
}

// RuleResult is a rule's contribution to the score plus any findings
type RuleResult struct {
	Delta      int
	Violations []Violation
}

// Rule scores one aspect of a candidate password. Rules must be pure.
type Rule interface {
	Apply(password string, sctx StrengthContext) RuleResult
}

// Threshold maps a minimum score to a tier label
type Threshold struct {
	MinScore int    `json:"min_score"`
	Label    string `json:"label"`
}

// Verdict is the outcome of evaluating a password
type Verdict struct {
	Score      int      `json:"score"`
	Tier       string   `json:"tier"`
	Violations []RuleID `json:"violations"`
	Acceptable bool     `json:"acceptable"`
}

// ViolationStrings returns the violation IDs as plain strings
func (v Verdict) ViolationStrings() []string {
	out := make([]string, len(v.Violations))
	for i, id := range v.Violations {
		out[i] = string(id)
	}
	return out
}

// LengthRule requires MinLength runes and rewards length up to Cap
type LengthRule struct {
	MinLength int
	Weight    int
	Cap       int
}

func (r LengthRule) Apply(password string, _ StrengthContext) RuleResult {
	n := utf8.RuneCountInString(password)
	res := RuleResult{Delta: min(n*r.Weight, r.Cap)}
	if n < r.MinLength {
		res.Violations = append(res.Violations, Violation{Rule: RuleInsufficientLength, Blocking: true})
	}
	return res
}

// ClassRule requires an uppercase letter, a lowercase letter, a digit and a
// special character (unicode punctuation or symbol). Each present class adds Weight.
type ClassRule struct {
	Weight int
}

func (r ClassRule) Apply(password string, _ StrengthContext) RuleResult {
	var upper, lower, digit, special bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			special = true
		}
	}

	var res RuleResult
	classes := []struct {
		present bool
		id      RuleID
	}{
		{upper, RuleMissingUppercase},
		{lower, RuleMissingLowercase},
		{digit, RuleMissingDigit},
		{special, RuleMissingSpecial},
	}
	for _, c := range classes {
		if c.present {
			res.Delta += r.Weight
			continue
		}
		res.Violations = append(res.Violations, Violation{Rule: c.id, Blocking: true})
	}
	return res
}

// RepetitionRule penalises runs of RunLength or more identical runes
type RepetitionRule struct {
	RunLength int
	Penalty   int
}

func (r RepetitionRule) Apply(password string, _ StrengthContext) RuleResult {
	runLength := r.RunLength
	if runLength < 2 {
		runLength = 3
	}

	var prev rune
	run := 0
	for i, c := range []rune(password) {
		if i > 0 && c == prev {
			run++
		} else {
			run = 1
		}
		prev = c
		if run >= runLength {
			return RuleResult{
				Delta:      -r.Penalty,
				Violations: []Violation{{Rule: RuleRepeatedCharacters}},
			}
		}
	}
	return RuleResult{}
}

// DenylistRule flags passwords that equal or start with a common password,
// compared case-insensitively.
type DenylistRule struct {
	Entries []string
	Penalty int
	Reject  bool
}

func (r DenylistRule) Apply(password string, _ StrengthContext) RuleResult {
	lowered := strings.ToLower(password)
	for _, entry := range r.Entries {
		if entry == "" {
			continue
		}
		if strings.HasPrefix(lowered, strings.ToLower(entry)) {
			return RuleResult{
				Delta:      -r.Penalty,
				Violations: []Violation{{Rule: RuleCommonPassword, Blocking: r.Reject}},
			}
		}
	}
	return RuleResult{}
}

// ContextRule flags passwords containing the username or the email local part.
// Fragments shorter than MinFragment runes are ignored.
type ContextRule struct {
	MinFragment int
	Penalty     int
	Reject      bool
}

func (r ContextRule) Apply(password string, sctx StrengthContext) RuleResult {
	lowered := strings.ToLower(password)
	var res RuleResult

	check := func(fragment string, id RuleID) {
		fragment = strings.ToLower(strings.TrimSpace(fragment))
		if utf8.RuneCountInString(fragment) < r.MinFragment {
			return
		}
		if strings.Contains(lowered, fragment) {
			res.Delta -= r.Penalty
			res.Violations = append(res.Violations, Violation{Rule: id, Blocking: r.Reject})
		}
	}

	check(sctx.Username, RuleContainsUsername)
	local, _, _ := strings.Cut(sctx.Email, "@")
	check(local, RuleContainsEmail)

	return res
}

// StrengthPolicy configures the default rule set and tier table
type StrengthPolicy struct {
	MinLength    int
	LengthWeight int
	LengthCap    int
	ClassWeight  int

	RepetitionRun     int
	RepetitionPenalty int

	Denylist         []string
	DenylistPenalty  int
	RejectDenylisted bool

	ContextMinFragment int
	ContextPenalty     int
	RejectContextMatch bool

	// Thresholds must be ordered by ascending MinScore, starting at 0
	Thresholds []Threshold

	EnforceMinimumTier bool
	MinimumTier        string
}

// DefaultDenylist holds extremely common passwords and keyboard walks
var DefaultDenylist = []string{
	"password",
	"passw0rd",
	"12345678",
	"123456",
	"123123",
	"qwerty",
	"asdfgh",
	"zxcvbn",
	"1qaz2wsx",
	"abc123",
	"admin",
	"letmein",
	"welcome",
	"iloveyou",
	"monkey",
	"dragon",
	"master",
	"shadow",
	"sunshine",
	"princess",
	"starwars",
	"football",
	"baseball",
	"trustno1",
}

// DefaultThresholds is the five-tier label table
var DefaultThresholds = []Threshold{
	{MinScore: 0, Label: "very weak"},
	{MinScore: 20, Label: "weak"},
	{MinScore: 40, Label: "fair"},
	{MinScore: 60, Label: "strong"},
	{MinScore: 80, Label: "very strong"},
}

// DefaultStrengthPolicy returns the stock scoring weights
func DefaultStrengthPolicy() StrengthPolicy {
	return StrengthPolicy{
		MinLength:          12,
		LengthWeight:       3,
		LengthCap:          40,
		ClassWeight:        15,
		RepetitionRun:      3,
		RepetitionPenalty:  20,
		Denylist:           append([]string(nil), DefaultDenylist...),
		DenylistPenalty:    30,
		RejectDenylisted:   true,
		ContextMinFragment: 3,
		ContextPenalty:     25,
		RejectContextMatch: false,
		Thresholds:         append([]Threshold(nil), DefaultThresholds...),
	}
}

// Rules builds the rule list the policy describes
func (p StrengthPolicy) Rules() []Rule {
	return []Rule{
		LengthRule{MinLength: p.MinLength, Weight: p.LengthWeight, Cap: p.LengthCap},
		ClassRule{Weight: p.ClassWeight},
		RepetitionRule{RunLength: p.RepetitionRun, Penalty: p.RepetitionPenalty},
		DenylistRule{Entries: p.Denylist, Penalty: p.DenylistPenalty, Reject: p.RejectDenylisted},
		ContextRule{MinFragment: p.ContextMinFragment, Penalty: p.ContextPenalty, Reject: p.RejectContextMatch},
	}
}

// StrengthEvaluator scores passwords. It holds no mutable state and is safe
// for concurrent use.
type StrengthEvaluator struct {
	rules        []Rule
	thresholds   []Threshold
	enforceTier  bool
	minTierIndex int
}

// NewStrengthEvaluator validates policy and builds an evaluator running the
// policy's rules followed by any extra rules.
func NewStrengthEvaluator(policy StrengthPolicy, extra ...Rule) (*StrengthEvaluator, error) {
	if policy.MinLength < 1 {
		return nil, fmt.Errorf("strength policy: min length must be at least 1, got %d", policy.MinLength)
	}
	if err := validateThresholds(policy.Thresholds); err != nil {
		return nil, err
	}

	e := &StrengthEvaluator{
		rules:       append(policy.Rules(), extra...),
		thresholds:  append([]Threshold(nil), policy.Thresholds...),
		enforceTier: policy.EnforceMinimumTier,
	}

	if policy.EnforceMinimumTier {
		e.minTierIndex = -1
		for i, t := range policy.Thresholds {
			if t.Label == policy.MinimumTier {
				e.minTierIndex = i
				break
			}
		}
		if e.minTierIndex < 0 {
			return nil, fmt.Errorf("strength policy: unknown minimum tier %q", policy.MinimumTier)
		}
	}

	return e, nil
}

func validateThresholds(thresholds []Threshold) error {
	if len(thresholds) == 0 {
		return errors.New("strength policy: thresholds cannot be empty")
	}
	if thresholds[0].MinScore != 0 {
		return errors.New("strength policy: first threshold must start at 0")
	}
	seen := make(map[string]bool, len(thresholds))
	for i, t := range thresholds {
		if t.Label == "" {
			return fmt.Errorf("strength policy: threshold %d has no label", i)
		}
		if seen[t.Label] {
			return fmt.Errorf("strength policy: duplicate tier label %q", t.Label)
		}
		seen[t.Label] = true
		if t.MinScore < 0 || t.MinScore > 100 {
			return fmt.Errorf("strength policy: threshold %q out of range: %d", t.Label, t.MinScore)
		}
		if i > 0 && t.MinScore <= thresholds[i-1].MinScore {
			return fmt.Errorf("strength policy: thresholds must be strictly ascending at %q", t.Label)
		}
	}
	return nil
}

// Evaluate runs every rule and maps the clamped score onto a tier
func (e *StrengthEvaluator) Evaluate(password string, sctx StrengthContext) Verdict {
	score := 0
	violations := make([]RuleID, 0)
	acceptable := true

	for _, rule := range e.rules {
		res := rule.Apply(password, sctx)
		score += res.Delta
		for _, v := range res.Violations {
			violations = append(violations, v.Rule)
			if v.Blocking {
				acceptable = false
			}
		}
	}

	score = max(0, min(score, 100))
	tierIndex := e.tierIndex(score)

	if e.enforceTier && tierIndex < e.minTierIndex {
		violations = append(violations, RuleBelowMinimumTier)
		acceptable = false
	}

	return Verdict{
		Score:      score,
		Tier:       e.thresholds[tierIndex].Label,
		Violations: violations,
		Acceptable: acceptable,
	}
}

func (e *StrengthEvaluator) tierIndex(score int) int {
	idx := 0
	for i, t := range e.thresholds {
		if score >= t.MinScore {
			idx = i
		}
	}
	return idx
}

// Thresholds returns a copy of the tier table
func (e *StrengthEvaluator) Thresholds() []Threshold {
	return append([]Threshold(nil), e.thresholds...)
}
