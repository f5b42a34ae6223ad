package libsfiles

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// sfilesLexer recognizes the surface syntax of the notation.  Rule order
// matters: incoming-branch and signal markers must win over the cycle
// markers they prefix-overlap with, and two-digit indices require the %NN
// form so a bare digit run like "12" still lexes as two cycle closers.
// Whitespace has no rule: any whitespace in the input is a syntax error.
var sfilesLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Unit", Pattern: `\([a-z][a-z0-9]*(-[0-9]+(/[0-9]+)?)?\)`},
	{Name: "Tag", Pattern: `\{[^{}]*\}`},
	{Name: "Sep", Pattern: `n\|`},
	{Name: "IncomingOpen", Pattern: `<&\|`},
	{Name: "IncomingClose", Pattern: `&\|`},
	{Name: "SignalOpen", Pattern: `<_%[0-9][0-9]|<_[0-9]`},
	{Name: "CycleOpen", Pattern: `<%[0-9][0-9]|<[0-9]`},
	{Name: "SignalClose", Pattern: `_%[0-9][0-9]|_[0-9]`},
	{Name: "CycleClose", Pattern: `%[0-9][0-9]|[0-9]`},
	{Name: "BranchOpen", Pattern: `\[`},
	{Name: "BranchClose", Pattern: `\]`},
})

var sfilesSymbols = func() map[lexer.TokenType]string {
	names := make(map[lexer.TokenType]string, len(sfilesLexer.Symbols()))
	for name, t := range sfilesLexer.Symbols() {
		names[t] = name
	}
	return names
}()

func syntaxErrf(offset int, format string, args ...interface{}) error {
	msg := "offset " + strconv.Itoa(offset) + ": " + format
	return errors.Wrapf(gosfiles.ErrMalformedSyntax, msg, args...)
}

// lexOffset recovers the byte offset carried by a participle lexer error.
func lexOffset(err error) int {
	type positioned interface {
		Position() lexer.Position
	}
	if p, ok := err.(positioned); ok {
		return p.Position().Offset
	}
	return 0
}

// Tokenize lexes a raw SFILES string into its token sequence.  Bracket and
// incoming-branch pairing is checked here; cycle and signal index pairing
// is topology and is left to the builder.
func Tokenize(sfiles string) ([]Token, error) {
	lx, err := sfilesLexer.LexString("", sfiles)
	if err != nil {
		return nil, syntaxErrf(lexOffset(err), "%v", err)
	}

	var (
		toks          []Token
		branchOpens   []int // offsets of unmatched '['
		incomingOpens []int // offsets of unmatched "<&|"
	)

	for {
		lt, err := lx.Next()
		if err != nil {
			return nil, syntaxErrf(lexOffset(err), "unrecognized input")
		}
		if lt.EOF() {
			break
		}

		off := lt.Pos.Offset
		switch sfilesSymbols[lt.Type] {
		case "Unit":
			unit, err := parseUnitToken(lt.Value, off)
			if err != nil {
				return nil, err
			}
			toks = append(toks, Token{Kind: TokNode, Unit: unit, Offset: off})

		case "Tag":
			entry := lt.Value[1 : len(lt.Value)-1]
			if entry == "" {
				continue // an empty tag block carries zero entries
			}
			if !wellFormedTag(entry) {
				return nil, syntaxErrf(off, "bad tag entry %q", entry)
			}
			if !tagMayFollow(toks) {
				return nil, syntaxErrf(off, "tag block must follow a unit or join token")
			}
			toks = append(toks, Token{Kind: TokTagBlock, Tag: entry, Offset: off})

		case "Sep":
			toks = append(toks, Token{Kind: TokSeparator, Offset: off})

		case "BranchOpen":
			branchOpens = append(branchOpens, off)
			toks = append(toks, Token{Kind: TokBranchOpen, Offset: off})

		case "BranchClose":
			if len(branchOpens) == 0 {
				return nil, syntaxErrf(off, "unmatched ']'")
			}
			branchOpens = branchOpens[:len(branchOpens)-1]
			toks = append(toks, Token{Kind: TokBranchClose, Offset: off})

		case "IncomingOpen":
			incomingOpens = append(incomingOpens, off)
			toks = append(toks, Token{Kind: TokIncomingOpen, Offset: off})

		case "IncomingClose":
			if len(incomingOpens) == 0 {
				return nil, syntaxErrf(off, "unmatched '&|'")
			}
			incomingOpens = incomingOpens[:len(incomingOpens)-1]
			toks = append(toks, Token{Kind: TokIncomingClose, Offset: off})

		case "CycleOpen":
			toks = append(toks, Token{Kind: TokCycleOpen, Ref: parseRef(lt.Value), Offset: off})
		case "CycleClose":
			toks = append(toks, Token{Kind: TokCycleClose, Ref: parseRef(lt.Value), Offset: off})
		case "SignalOpen":
			toks = append(toks, Token{Kind: TokSignalOpen, Ref: parseRef(lt.Value), Offset: off})
		case "SignalClose":
			toks = append(toks, Token{Kind: TokSignalClose, Ref: parseRef(lt.Value), Offset: off})
		}
	}

	if len(branchOpens) > 0 {
		return nil, syntaxErrf(branchOpens[len(branchOpens)-1], "unmatched '['")
	}
	if len(incomingOpens) > 0 {
		return nil, syntaxErrf(incomingOpens[len(incomingOpens)-1], "unmatched '<&|'")
	}
	return toks, nil
}

// tagMayFollow reports whether a tag block is positioned legally: directly
// after a unit token, a join / close marker, or another tag block.
func tagMayFollow(toks []Token) bool {
	if len(toks) == 0 {
		return false
	}
	switch toks[len(toks)-1].Kind {
	case TokNode, TokIncomingClose, TokCycleClose, TokSignalClose, TokTagBlock:
		return true
	}
	return false
}

// parseUnitToken splits "(type-N/S)" into its UnitID parts.  Index and sub
// are optional in the literal; renumbering assigns final instance indices.
func parseUnitToken(lit string, off int) (UnitID, error) {
	body := lit[1 : len(lit)-1]

	var id UnitID
	if i := strings.IndexByte(body, '-'); i >= 0 {
		id.Type = body[:i]
		num := body[i+1:]
		if j := strings.IndexByte(num, '/'); j >= 0 {
			sub, err := strconv.Atoi(num[j+1:])
			if err != nil || sub < 1 {
				return UnitID{}, syntaxErrf(off, "bad sub-stream index in %q", lit)
			}
			id.Sub = sub
			num = num[:j]
		}
		idx, err := strconv.Atoi(num)
		if err != nil || idx < 1 {
			return UnitID{}, syntaxErrf(off, "bad unit index in %q", lit)
		}
		id.Index = idx
	} else {
		id.Type = body
	}
	return id, nil
}

func parseRef(lit string) int {
	lit = strings.TrimLeft(lit, "<_%")
	ref, _ := strconv.Atoi(lit)
	return ref
}
