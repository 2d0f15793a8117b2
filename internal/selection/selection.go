package selection

import (
	"fmt"
	"math/bits"
)

// Expr is a compiled selection expression.
// It is immutable and safe for concurrent use.
type Expr struct {
	src  string
	root node
}

// Compile parses expression without evaluating it.
// Range ordering, zero page numbers and zero-step progressions are reported
// here; page bounds can only be checked by Eval.
func Compile(expression string) (*Expr, error) {
	toks, err := lex(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{src: expression, toks: toks}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Expr{src: expression, root: root}, nil
}

// Parse compiles expression and evaluates it against a document with
// pageCount pages.
func Parse(expression string, pageCount uint) ([]uint, error) {
	expr, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	return expr.Eval(pageCount)
}

// String returns the source text of the expression.
func (x *Expr) String() string {
	return x.src
}

// IsEmpty reports whether the expression contains no terms.
func (x *Expr) IsEmpty() bool {
	return x.root == nil
}

// MaxPageCount is the largest page count Eval accepts.
const MaxPageCount = 1 << 24

// Eval evaluates the expression against a document with pageCount pages.
// The result is strictly ascending and contains no duplicates.
func (x *Expr) Eval(pageCount uint) ([]uint, error) {
	if uint64(pageCount) > MaxPageCount {
		return nil, &SyntaxError{
			Reason: fmt.Sprintf("page count %d exceeds the maximum of %d", pageCount, MaxPageCount),
			Offset: -1,
		}
	}
	if x.root == nil {
		return []uint{}, nil
	}
	e := &evaluator{src: x.src, count: uint64(pageCount)}
	set, err := x.root.eval(e)
	if err != nil {
		return nil, err
	}
	return set.pages(), nil
}

// pageSet is a bitset indexed by page number; bit 0 is unused.
type pageSet []uint64

func (s pageSet) add(page uint64) {
	s[page/64] |= 1 << (page % 64)
}

func (s pageSet) pages() []uint {
	out := []uint{}
	for w, word := range s {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, uint(w*64+b))
			word &= word - 1
		}
	}
	return out
}

type evaluator struct {
	src   string
	count uint64
}

func (e *evaluator) empty() pageSet {
	return make(pageSet, (e.count+64)/64)
}

// fill returns a set where every word is pattern, trimmed to 1..count.
func (e *evaluator) fill(pattern uint64) pageSet {
	s := e.empty()
	for i := range s {
		s[i] = pattern
	}
	e.trim(s)
	return s
}

// trim clears bit 0 and every bit above count.
func (e *evaluator) trim(s pageSet) {
	s[0] &^= 1
	if r := (e.count + 1) % 64; r != 0 {
		s[len(s)-1] &= 1<<r - 1
	}
}

func (e *evaluator) checkPage(page uint64, start, end int) error {
	if page < 1 || page > e.count {
		return errorAt(e.src, start, end, "page %d is out of range 1-%d", page, e.count)
	}
	return nil
}

func (n *pageNode) eval(e *evaluator) (pageSet, error) {
	if err := e.checkPage(n.page, n.start, n.end); err != nil {
		return nil, err
	}
	s := e.empty()
	s.add(n.page)
	return s, nil
}

func (n *rangeNode) eval(e *evaluator) (pageSet, error) {
	to := n.to
	if n.open {
		if err := e.checkPage(n.from, n.start, n.end); err != nil {
			return nil, err
		}
		to = e.count
	} else {
		if err := e.checkPage(n.from, n.start, n.end); err != nil {
			return nil, err
		}
		if err := e.checkPage(n.to, n.start, n.end); err != nil {
			return nil, err
		}
	}
	s := e.empty()
	for i := n.from; i <= to; i++ {
		s.add(i)
	}
	return s, nil
}

func (n *keywordNode) eval(e *evaluator) (pageSet, error) {
	switch n.word {
	case "odd":
		return e.fill(0xAAAAAAAAAAAAAAAA), nil
	case "even":
		return e.fill(0x5555555555555555), nil
	}
	return e.fill(^uint64(0)), nil
}

func (n *progressionNode) eval(e *evaluator) (pageSet, error) {
	s := e.empty()
	limit := int64(e.count)
	v := n.offset
	if v < 1 {
		// jump straight to the first term that is at least 1
		k := (1 - v + n.step - 1) / n.step
		v += k * n.step
	}
	for ; v <= limit; v += n.step {
		s.add(uint64(v))
	}
	return s, nil
}

func (n *notNode) eval(e *evaluator) (pageSet, error) {
	inner, err := n.operand.eval(e)
	if err != nil {
		return nil, err
	}
	for i := range inner {
		inner[i] = ^inner[i]
	}
	e.trim(inner)
	return inner, nil
}

func (n *unionNode) eval(e *evaluator) (pageSet, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}
	for i := range left {
		left[i] |= right[i]
	}
	return left, nil
}

func (n *intersectNode) eval(e *evaluator) (pageSet, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}
	for i := range left {
		left[i] &= right[i]
	}
	return left, nil
}
