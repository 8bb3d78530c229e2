package object

import (
	"bytes"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
)

var objectPrefix = []byte("object ")

// TagTarget returns the target id of a raw annotated tag, which every
// well-formed tag opens with. A missing or malformed object field yields a
// DecodeError.
func TagTarget(data []byte) (githash.Hash, error) {
	line, _ := firstLine(data)
	if !bytes.HasPrefix(line, objectPrefix) {
		return githash.Zero(), &DecodeError{Kind: Tag, Msg: "no target field"}
	}

	id, err := githash.Parse(string(line[len(objectPrefix):]))
	if err != nil {
		return githash.Zero(), &DecodeError{Kind: Tag, Msg: "target field is not a valid hash"}
	}

	return id, nil
}
