// Package plugin implements the worker-side Plugin Registry (spec §4.5):
// a static, data-driven table mapping plugin kind to a container
// invocation descriptor. There is no runtime code loading (spec §9
// "Plugin loading") — every descriptor is registered at startup.
package plugin

// TokenKind distinguishes an argv_template token (spec §4.5).
type TokenKind int

const (
	TokenLiteral TokenKind = iota
	TokenParam
	TokenInput
	TokenOutput
)

// Token is one entry of an argv_template: either a literal string or a
// placeholder resolved against the task's params/inputs/outputs at
// invocation time.
type Token struct {
	Kind TokenKind
	// Literal holds the text for TokenLiteral; Name holds the
	// param/input/output key for the other kinds.
	Literal string
	Name    string
}

func Lit(s string) Token       { return Token{Kind: TokenLiteral, Literal: s} }
func Param(name string) Token  { return Token{Kind: TokenParam, Name: name} }
func Input(name string) Token  { return Token{Kind: TokenInput, Name: name} }
func Output(name string) Token { return Token{Kind: TokenOutput, Name: name} }

// Descriptor is a plugin kind's container invocation record (spec §4.5).
type Descriptor struct {
	Kind            string
	Image           string
	ArgvTemplate    []Token
	ExpectedInputs  []string
	ExpectedOutputs []string
}

// Render substitutes argv placeholders against the given params and the
// input/output file names materialized in the task's scratch directory.
func (d Descriptor) Render(params map[string]string) ([]string, error) {
	argv := make([]string, 0, len(d.ArgvTemplate))
	for _, tok := range d.ArgvTemplate {
		switch tok.Kind {
		case TokenLiteral:
			argv = append(argv, tok.Literal)
		case TokenParam:
			v, ok := params[tok.Name]
			if !ok {
				return nil, &missingParamError{Name: tok.Name}
			}
			argv = append(argv, v)
		case TokenInput, TokenOutput:
			argv = append(argv, tok.Name)
		}
	}
	return argv, nil
}

type missingParamError struct{ Name string }

func (e *missingParamError) Error() string {
	return "plugin: missing required param " + e.Name
}
