// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package nad

import (
	"bufio"
	"encoding/xml"
	"io"

	"mellium.im/xmlstream"
)

// WriteTo serializes the NAD back to XML, satisfying io.WriterTo. Output
// is deterministic: an element's namespace is written as a leading xmlns
// attribute only where it differs from its parent's, followed by its
// declared attributes in
// insertion order, its direct character data, then its children.
//
// Serialization itself runs through xmlstream.Copy into a stdlib
// xml.Encoder: TokenReader turns the flat element/attr arrays into the
// xml.Token stream Copy expects, the same token-based path stream/error.go
// and the stanza package use to marshal their own types.
func (n *NAD) WriteTo(w io.Writer) (int64, error) {
	if n.Root() == None {
		return 0, nil
	}
	bw := bufio.NewWriter(w)
	cw := &countWriter{w: bw}
	enc := xml.NewEncoder(cw)
	_, err := xmlstream.Copy(enc, n.TokenReader(n.Root()))
	if err == nil {
		err = enc.Flush()
	}
	if flushErr := bw.Flush(); err == nil {
		err = flushErr
	}
	return cw.n, err
}

// countWriter tracks the number of bytes written so WriteTo can satisfy
// io.WriterTo's (int64, error) signature.
type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	nn, err := c.w.Write(p)
	c.n += int64(nn)
	return nn, err
}

// TokenReader returns an xmlstream.TokenReader walking the subtree rooted
// at elem (inclusive) as a sequence of xml.StartElement, xml.CharData, and
// xml.EndElement tokens, suitable for driving straight into an
// xml.Encoder via xmlstream.Copy.
//
// An element's namespace is only carried on its StartElement.Name.Space
// when it differs from the namespace already in scope from its parent,
// so xml.Encoder (which otherwise re-declares xmlns on every token
// carrying a non-empty Name.Space) does not redundantly repeat an
// inherited default namespace on every descendant. This mirrors how
// ParseElement's underlying xml.Decoder resolves an element's namespace
// by inheritance even when no xmlns attribute is present on it.
func (n *NAD) TokenReader(elem int) xmlstream.TokenReader {
	if elem == None {
		return xmlstream.ReaderFunc(func() (xml.Token, error) { return nil, io.EOF })
	}
	return &nadTokenReader{n: n, stack: []*nadFrame{{elem: elem, child: n.FirstChild(elem)}}}
}

// nadFrame tracks one element's position in its own emission sequence:
// phase 0 emits the StartElement, phase 1 emits CharData (if any), phase 2
// walks children one at a time, and phase 3 emits the EndElement before
// the frame is popped.
type nadFrame struct {
	elem  int
	phase int
	child int
	name  xml.Name // the Name actually used on the StartElement/EndElement pair
}

type nadTokenReader struct {
	n     *NAD
	stack []*nadFrame
}

// Token implements xmlstream.TokenReader.
func (r *nadTokenReader) Token() (xml.Token, error) {
	for len(r.stack) > 0 {
		f := r.stack[len(r.stack)-1]
		switch f.phase {
		case 0:
			f.phase = 1
			parentNS := ""
			if len(r.stack) > 1 {
				// The parent's true resolved namespace, not however it chose
				// to render its own tag: inheritance on the wire is
				// transitive, so a grandchild may omit xmlns even if its
				// parent also omitted one and inherited from further up.
				parentNS = r.n.ElementNamespace(r.stack[len(r.stack)-2].elem)
			}
			f.name = r.startName(f.elem, parentNS)
			return xml.StartElement{Name: f.name, Attr: r.attrs(f.elem)}, nil
		case 1:
			f.phase = 2
			if cd := r.n.ElementCData(f.elem); cd != "" {
				return xml.CharData(cd), nil
			}
		case 2:
			if f.child == None {
				f.phase = 3
				continue
			}
			child := f.child
			f.child = r.n.NextSibling(child)
			r.stack = append(r.stack, &nadFrame{elem: child, child: r.n.FirstChild(child)})
		case 3:
			r.stack = r.stack[:len(r.stack)-1]
			return xml.EndElement{Name: f.name}, nil
		}
	}
	return nil, io.EOF
}

// startName resolves elem's effective xml.Name: its own namespace, unless
// that namespace is identical to parentNS, in which case Space is left
// empty so the encoder does not redeclare an already-inherited default
// namespace.
func (r *nadTokenReader) startName(elem int, parentNS string) xml.Name {
	ns := r.n.ElementNamespace(elem)
	if ns == parentNS {
		ns = ""
	}
	return xml.Name{Space: ns, Local: r.n.ElementName(elem)}
}

// attrs copies elem's attributes into xml.Attr values, discarding any
// attribute namespace: this protocol's attributes (to, from, type, id,
// ...) are never themselves namespace-qualified, matching nad.Parse's own
// attribute handling.
func (r *nadTokenReader) attrs(elem int) []xml.Attr {
	idxs := r.n.Attrs(elem)
	if len(idxs) == 0 {
		return nil
	}
	out := make([]xml.Attr, 0, len(idxs))
	for _, a := range idxs {
		out = append(out, xml.Attr{
			Name:  xml.Name{Local: r.n.AttrName(a)},
			Value: r.n.AttrValue(a),
		})
	}
	return out
}
