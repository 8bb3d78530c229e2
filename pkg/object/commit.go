package object

import (
	"bytes"
	"strconv"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
)

// Raw commit header field prefixes.
var (
	treePrefix      = []byte("tree ")
	parentPrefix    = []byte("parent ")
	committerPrefix = []byte("committer ")
)

// CommitTree returns the tree id of a raw commit, which every well-formed
// commit opens with. The store only vouches for an object's kind, not its
// content, so a missing or malformed tree field yields a DecodeError.
func CommitTree(data []byte) (githash.Hash, error) {
	line, _ := firstLine(data)
	if !bytes.HasPrefix(line, treePrefix) {
		return githash.Zero(), &DecodeError{Kind: Commit, Msg: "no tree field"}
	}

	id, err := githash.Parse(string(line[len(treePrefix):]))
	if err != nil {
		return githash.Zero(), &DecodeError{Kind: Commit, Msg: "tree field is not a valid hash"}
	}

	return id, nil
}

// CommitParents appends the parent ids of a raw commit to out and returns the
// extended slice. A malformed parent field yields a DecodeError; commits
// without parents yield out unchanged.
func CommitParents(data []byte, out []githash.Hash) ([]githash.Hash, error) {
	rest := data

	line, next := firstLine(rest)
	if bytes.HasPrefix(line, treePrefix) {
		rest = next
	}

	for len(rest) > 0 {
		line, next = firstLine(rest)
		if !bytes.HasPrefix(line, parentPrefix) {
			break
		}

		id, err := githash.Parse(string(line[len(parentPrefix):]))
		if err != nil {
			return out, &DecodeError{Kind: Commit, Msg: "parent field is not a valid hash"}
		}

		out = append(out, id)
		rest = next
	}

	return out, nil
}

// CommitTime returns the committer timestamp (seconds since epoch) of a raw
// commit. Used to order ancestry walks newest-first.
func CommitTime(data []byte) (int64, error) {
	rest := data
	for len(rest) > 0 {
		line, next := firstLine(rest)
		if len(line) == 0 {
			// Header/message separator reached without a committer field.
			break
		}

		if bytes.HasPrefix(line, committerPrefix) {
			return signatureTime(line[len(committerPrefix):])
		}

		rest = next
	}

	return 0, &DecodeError{Kind: Commit, Msg: "no committer field"}
}

// signatureTime extracts the timestamp from "Name <email> <seconds> <zone>".
func signatureTime(sig []byte) (int64, error) {
	// The timestamp is the second-to-last space-separated token.
	end := bytes.LastIndexByte(sig, ' ')
	if end <= 0 {
		return 0, &DecodeError{Kind: Commit, Msg: "committer field has no timestamp"}
	}

	start := bytes.LastIndexByte(sig[:end], ' ')
	if start < 0 {
		return 0, &DecodeError{Kind: Commit, Msg: "committer field has no timestamp"}
	}

	seconds, err := strconv.ParseInt(string(sig[start+1:end]), 10, 64)
	if err != nil {
		return 0, &DecodeError{Kind: Commit, Msg: "committer timestamp is not a number"}
	}

	return seconds, nil
}

// firstLine splits data at the first newline, returning the line without the
// terminator and the remainder after it.
func firstLine(data []byte) (line, rest []byte) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return data, nil
	}

	return data[:idx], data[idx+1:]
}
