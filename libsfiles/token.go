package libsfiles

import "strconv"

// TokenKind identifies one atomic element of the notation.
type TokenKind int32

const (
	TokNode TokenKind = iota + 1
	TokBranchOpen
	TokBranchClose
	TokIncomingOpen
	TokIncomingClose
	TokCycleOpen
	TokCycleClose
	TokSignalOpen
	TokSignalClose
	TokTagBlock
	TokSeparator
)

// Token is one element of a tokenized SFILES string.  A token sequence is
// produced fresh per Tokenize or Encode call and is never mutated after
// creation.
type Token struct {
	Kind   TokenKind
	Unit   UnitID // set for TokNode
	Ref    int    // numeric index for cycle / signal markers
	Tag    string // raw entry content for TokTagBlock
	Offset int    // byte offset in the source string (parse direction only)
}

// refString renders a cycle or signal index: single digit as-is, larger
// indices in the two-digit %NN form.
func refString(ref int) string {
	if ref < 10 {
		return strconv.Itoa(ref)
	}
	return "%" + strconv.Itoa(ref)
}

// appendText renders the token in surface syntax.  Unit numbering is
// stripped when bare is set.
func (t Token) appendText(dst []byte, bare bool) []byte {
	switch t.Kind {
	case TokNode:
		dst = append(dst, '(')
		if bare {
			dst = append(dst, t.Unit.Type...)
		} else {
			dst = append(dst, t.Unit.String()...)
		}
		dst = append(dst, ')')
	case TokBranchOpen:
		dst = append(dst, '[')
	case TokBranchClose:
		dst = append(dst, ']')
	case TokIncomingOpen:
		dst = append(dst, '<', '&', '|')
	case TokIncomingClose:
		dst = append(dst, '&', '|')
	case TokCycleOpen:
		dst = append(dst, '<')
		dst = append(dst, refString(t.Ref)...)
	case TokCycleClose:
		dst = append(dst, refString(t.Ref)...)
	case TokSignalOpen:
		dst = append(dst, '<', '_')
		dst = append(dst, refString(t.Ref)...)
	case TokSignalClose:
		dst = append(dst, '_')
		dst = append(dst, refString(t.Ref)...)
	case TokTagBlock:
		dst = append(dst, '{')
		dst = append(dst, t.Tag...)
		dst = append(dst, '}')
	case TokSeparator:
		dst = append(dst, 'n', '|')
	}
	return dst
}
