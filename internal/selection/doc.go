// Package selection parses page selection expressions.
//
// A selection expression is the text a user types to pick pages out of a
// document, for example "1-3,5", "odd & 1-10" or "2n+1". Evaluating an
// expression against a page count yields the selected 1-based page
// positions in ascending order with duplicates removed.
//
// # Grammar
//
// Operators, from lowest to highest precedence:
//
//	a , b   a | b   a or b    union
//	a & b   a and b           intersection
//	!a      not a             complement within [1, pageCount]
//
// Atoms:
//
//	7         a single page
//	3-9       an inclusive range (start must not exceed end)
//	4-        page 4 through the last page
//	odd even  pages by parity
//	all       every page
//	2n+1      the progression 1, 3, 5, ... (also 3n, n, 4n-1)
//	( ... )   grouping
//
// Literal page numbers outside the document are rejected rather than
// clipped, so typos surface early. Progressions are open ended and are the
// only construct that clips itself to the document.
//
// # Usage
//
//	pages, err := selection.Parse("1-10 & odd, 20", 24)
//	if err != nil {
//	    var se *selection.SyntaxError
//	    if errors.As(err, &se) {
//	        // highlight se.Fragment at se.Offset
//	    }
//	}
//
// Expressions can also be compiled once and evaluated against several page
// counts:
//
//	expr, err := selection.Compile("even")
//	a, _ := expr.Eval(10)
//	b, _ := expr.Eval(3)
package selection
