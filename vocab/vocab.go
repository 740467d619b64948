package vocab

import (
	"fmt"
	"sort"
	"strings"
)

// Special markers shared by every vocabulary. The start marker opens each
// target sequence, the end marker terminates decoding and the pad token
// fills the tail of short sequences once the dataset's -1 sentinel has been
// replaced.
const (
	StartToken = "<SOS>"
	EndToken   = "<EOS>"
	PadToken   = "<PAD>"
)

// Vocab is the bidirectional token/id mapping the dataset was encoded with.
type Vocab struct {
	TokenToID map[string]int
	IDToToken map[int]string
}

// New builds a vocabulary from the given symbol set. The special markers are
// assigned the lowest ids, followed by the symbols in sorted order so that a
// given symbol set always produces the same mapping.
func New(tokens []string) *Vocab {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)

	v := &Vocab{
		TokenToID: make(map[string]int, len(sorted)+3),
		IDToToken: make(map[int]string, len(sorted)+3),
	}

	for _, token := range []string{PadToken, StartToken, EndToken} {
		v.add(token)
	}
	for _, token := range sorted {
		if _, ok := v.TokenToID[token]; !ok {
			v.add(token)
		}
	}
	return v
}

// FromMappings reconstructs a vocabulary from previously stored mappings,
// typically when resuming from a checkpoint.
func FromMappings(tokenToID map[string]int, idToToken map[int]string) (*Vocab, error) {
	if len(tokenToID) != len(idToToken) {
		return nil, fmt.Errorf("mapping size mismatch: %d tokens, %d ids", len(tokenToID), len(idToToken))
	}
	for token, id := range tokenToID {
		if idToToken[id] != token {
			return nil, fmt.Errorf("inconsistent mapping for token %q (id %d)", token, id)
		}
	}
	for _, token := range []string{PadToken, StartToken, EndToken} {
		if _, ok := tokenToID[token]; !ok {
			return nil, fmt.Errorf("vocabulary is missing the %s marker", token)
		}
	}
	return &Vocab{TokenToID: tokenToID, IDToToken: idToToken}, nil
}

func (v *Vocab) add(token string) {
	id := len(v.TokenToID)
	v.TokenToID[token] = id
	v.IDToToken[id] = token
}

// Len returns the number of classes, special markers included.
func (v *Vocab) Len() int {
	return len(v.TokenToID)
}

// Tokens lists every token in id order.
func (v *Vocab) Tokens() []string {
	tokens := make([]string, v.Len())
	for id, token := range v.IDToToken {
		if id >= 0 && id < len(tokens) {
			tokens[id] = token
		}
	}
	return tokens
}

func (v *Vocab) PadID() int {
	return v.TokenToID[PadToken]
}

func (v *Vocab) StartID() int {
	return v.TokenToID[StartToken]
}

func (v *Vocab) EndID() int {
	return v.TokenToID[EndToken]
}

// Decode renders an id sequence as a space-separated token string. In eval
// mode decoding stops at the first end marker and the special markers and
// the -1 pad sentinel are dropped, so that metric comparisons only see real
// symbols. Outside eval mode only the sentinel is dropped.
func (v *Vocab) Decode(ids []int, eval bool) string {
	var b strings.Builder
	endID := v.EndID()
	first := true

	for _, id := range ids {
		if id == -1 {
			continue
		}
		if eval {
			if id == endID {
				break
			}
			if id == v.PadID() || id == v.StartID() {
				continue
			}
		}
		token, ok := v.IDToToken[id]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(' ')
		}
		b.WriteString(token)
		first = false
	}
	return b.String()
}

// DecodeBatch decodes every sequence in the batch.
func (v *Vocab) DecodeBatch(sequences [][]int, eval bool) []string {
	result := make([]string, len(sequences))
	for i, ids := range sequences {
		result[i] = v.Decode(ids, eval)
	}
	return result
}
