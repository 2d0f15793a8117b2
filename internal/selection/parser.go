package selection

// node is an element of a compiled expression tree.
type node interface {
	eval(e *evaluator) (pageSet, error)
}

type (
	pageNode struct {
		page       uint64
		start, end int
	}

	rangeNode struct {
		from, to   uint64
		open       bool // "4-": runs to the last page
		start, end int
	}

	keywordNode struct {
		word string
	}

	progressionNode struct {
		step   int64
		offset int64
	}

	notNode struct {
		operand node
	}

	unionNode struct {
		left, right node
	}

	intersectNode struct {
		left, right node
	}
)

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) unexpected(t token) *SyntaxError {
	if t.kind == tokEOF {
		return &SyntaxError{Reason: "unexpected end of expression", Offset: t.start}
	}
	return errorAt(p.src, t.start, t.end, "unexpected %s", t.kind)
}

// parse parses the whole token stream. An empty stream yields a nil node.
func (p *parser) parse() (node, error) {
	if p.peek().kind == tokEOF {
		return nil, nil
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.unexpected(t)
	}
	return n, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &unionNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &intersectNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			if closing.kind == tokEOF {
				return nil, errorAt(p.src, t.start, t.end, "unbalanced parenthesis")
			}
			return nil, p.unexpected(closing)
		}
		return inner, nil

	case tokNumber:
		if w := p.peek(); w.kind == tokWord && w.text == "n" {
			p.next()
			return p.parseProgression(t, int64(t.value))
		}
		if p.peek().kind == tokDash {
			return p.parseRange(t)
		}
		if t.value == 0 {
			return nil, errorAt(p.src, t.start, t.end, "page numbers start at 1")
		}
		return &pageNode{page: t.value, start: t.start, end: t.end}, nil

	case tokWord:
		switch t.text {
		case "odd", "even", "all":
			return &keywordNode{word: t.text}, nil
		case "n":
			return p.parseProgression(t, 1)
		}
		return nil, errorAt(p.src, t.start, t.end, "unknown keyword %q", t.text)
	}
	return nil, p.unexpected(t)
}

// parseRange parses the remainder of "a-b" or "a-" after the start token.
func (p *parser) parseRange(from token) (node, error) {
	p.next() // '-'
	if from.value == 0 {
		return nil, errorAt(p.src, from.start, from.end, "page numbers start at 1")
	}
	if p.peek().kind != tokNumber {
		return &rangeNode{from: from.value, open: true, start: from.start, end: p.toks[p.pos-1].end}, nil
	}
	to := p.next()
	if from.value > to.value {
		return nil, errorAt(p.src, from.start, to.end, "range start %d is after range end %d", from.value, to.value)
	}
	return &rangeNode{from: from.value, to: to.value, start: from.start, end: to.end}, nil
}

// parseProgression parses the optional "+b" or "-b" tail of a progression
// whose step has already been read.
func (p *parser) parseProgression(first token, step int64) (node, error) {
	if step == 0 {
		return nil, errorAt(p.src, first.start, p.toks[p.pos-1].end, "progression step must be greater than zero")
	}
	var offset int64
	switch p.peek().kind {
	case tokPlus, tokDash:
		sign := p.next()
		num := p.next()
		if num.kind != tokNumber {
			return nil, p.unexpected(num)
		}
		offset = int64(num.value)
		if sign.kind == tokDash {
			offset = -offset
		}
	}
	return &progressionNode{step: step, offset: offset}, nil
}
