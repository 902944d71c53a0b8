// Package xname identifies components in the hardware topology by their
// positional address - cabinet, chassis, slot, BMC, node.
package xname

import (
	"regexp"
	"strconv"
	"strings"
)

// Type classifies an xname by the level of the hardware hierarchy it addresses.
type Type string

const (
	TypeNode    Type = "NODE"
	TypeBMC     Type = "BMC"
	TypeSlot    Type = "SLOT"
	TypeChassis Type = "CHASSIS"
	TypeCabinet Type = "CABINET"
	TypeUnknown Type = "UNKNOWN"
)

// typePatterns are ordered most to least specific since each pattern is a
// prefix of the one before it - the first full match wins.
var typePatterns = []struct {
	xnameType Type
	pattern   *regexp.Regexp
}{
	{TypeNode, regexp.MustCompile(`^x\d+c\d+s\d+b\d+n\d+$`)},
	{TypeBMC, regexp.MustCompile(`^x\d+c\d+s\d+b\d+$`)},
	{TypeSlot, regexp.MustCompile(`^x\d+c\d+s\d+$`)},
	{TypeChassis, regexp.MustCompile(`^x\d+c\d+$`)},
	{TypeCabinet, regexp.MustCompile(`^x\d+$`)},
}

var nodePrefixPattern = regexp.MustCompile(`^x\d+c\d+s\d+b\d+n\d+`)

// token is one literal/number pair of an xname. Parsing numbers strips
// leading zeros, so x0001c0 and x1c0 tokenize identically.
type token struct {
	lit string
	num int
}

// XName is an immutable positional component address. The zero value is an
// invalid xname.
type XName struct {
	raw    string
	tokens []token
}

// New returns the XName for the given address string. New never fails;
// structurally invalid input yields an XName whose Valid method returns false
// and whose Type is TypeUnknown.
func New(s string) XName {
	return XName{raw: s, tokens: tokenize(s)}
}

// tokenize splits an address on maximal digit runs into alternating literal
// and integer tokens. Literals are lower-cased. A trailing literal with no
// digit run after it carries no positional information and is dropped.
func tokenize(s string) []token {
	var tokens []token

	for i := 0; i < len(s); {
		start := i
		for i < len(s) && !isDigit(s[i]) {
			i++
		}

		lit := strings.ToLower(s[start:i])
		if i == len(s) {
			break
		}

		start = i
		for i < len(s) && isDigit(s[i]) {
			i++
		}

		num, err := strconv.Atoi(s[start:i])
		if err != nil {
			return nil
		}

		tokens = append(tokens, token{lit: lit, num: num})
	}

	return tokens
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// fromTokens builds an XName whose string form is the canonical rendering of
// the given tokens.
func fromTokens(tokens []token) XName {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.lit)
		sb.WriteString(strconv.Itoa(t.num))
	}

	return XName{raw: sb.String(), tokens: tokens}
}

// Valid indicates whether the address tokenized into at least one token.
func (x XName) Valid() bool { return len(x.tokens) > 0 }

// String returns the address as it was given.
func (x XName) String() string { return x.raw }

// Canonical returns the normalized form of the address - lower-cased literals
// and integers without leading zeros. Two xnames are equal exactly when their
// canonical forms are equal.
func (x XName) Canonical() string {
	var sb strings.Builder
	for _, t := range x.tokens {
		sb.WriteString(t.lit)
		sb.WriteString(strconv.Itoa(t.num))
	}

	return sb.String()
}

// Type classifies the address against the known component shapes. An
// address that failed to tokenize is unknown even when its raw shape
// matches a pattern.
func (x XName) Type() Type {
	if !x.Valid() {
		return TypeUnknown
	}

	for _, entry := range typePatterns {
		if entry.pattern.MatchString(x.raw) {
			return entry.xnameType
		}
	}

	return TypeUnknown
}

// Equal reports whether both addresses have the same tokens, regardless of
// leading zero or case differences in their string forms.
func (x XName) Equal(other XName) bool {
	if len(x.tokens) != len(other.tokens) {
		return false
	}

	for i, t := range x.tokens {
		if t != other.tokens[i] {
			return false
		}
	}

	return true
}

// Compare orders addresses lexicographically over their token sequences.
// Literal tokens compare as strings, integer tokens numerically. An address
// that is a strict prefix of another orders before it.
func (x XName) Compare(other XName) int {
	for i := range x.tokens {
		if i >= len(other.tokens) {
			return 1
		}

		if c := strings.Compare(x.tokens[i].lit, other.tokens[i].lit); c != 0 {
			return c
		}

		if x.tokens[i].num != other.tokens[i].num {
			if x.tokens[i].num < other.tokens[i].num {
				return -1
			}

			return 1
		}
	}

	if len(x.tokens) < len(other.tokens) {
		return -1
	}

	return 0
}

// Contains reports whether the component addressed by x contains the
// component addressed by other. An xname contains itself.
func (x XName) Contains(other XName) bool {
	if len(x.tokens) > len(other.tokens) {
		return false
	}

	for i, t := range x.tokens {
		if other.tokens[i] != t {
			return false
		}
	}

	return true
}

// Ancestor returns the address the given number of levels up the hierarchy.
// It fails when stripping that many levels would consume the whole address.
func (x XName) Ancestor(levels int) (XName, error) {
	if levels < 0 || levels >= len(x.tokens) {
		return XName{}, &AncestorRangeError{XName: x, Levels: levels}
	}

	return fromTokens(x.tokens[:len(x.tokens)-levels]), nil
}

// DirectParent returns the address one level up the hierarchy.
func (x XName) DirectParent() (XName, error) {
	return x.Ancestor(1)
}

// ParentNode returns the longest node-typed prefix of this address, if it has
// one. Used to map sub-node components back to the node that holds them.
func (x XName) ParentNode() (XName, bool) {
	match := nodePrefixPattern.FindString(x.raw)
	if match == "" {
		return XName{}, false
	}

	return New(match), true
}

// Cabinet returns the cabinet portion of the address.
func (x XName) Cabinet() XName {
	return fromTokens(x.tokens[:min(1, len(x.tokens))])
}

// Chassis returns the cabinet and chassis portion of the address.
func (x XName) Chassis() XName {
	return fromTokens(x.tokens[:min(2, len(x.tokens))])
}

// RelativeNodePositionMatch reports whether two node addresses occupy the
// same position on their respective blades, i.e. whether their trailing BMC
// and node tokens agree.
func (x XName) RelativeNodePositionMatch(other XName) bool {
	if x.Type() != TypeNode || other.Type() != TypeNode {
		return false
	}

	xt, ot := x.tokens[len(x.tokens)-2:], other.tokens[len(other.tokens)-2:]

	return xt[0] == ot[0] && xt[1] == ot[1]
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}

// AncestorRangeError indicates an Ancestor lookup past the root of the
// hierarchy.
type AncestorRangeError struct {
	XName  XName
	Levels int
}

func (e *AncestorRangeError) Error() string {
	return "no ancestor exists " + strconv.Itoa(e.Levels) + " levels up from " + e.XName.String()
}
