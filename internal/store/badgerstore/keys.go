package badgerstore

import (
	"encoding/binary"
	"net/url"
)

// Key layout:
//
//	doc/<type>/<id>          JSON document
//	hist/<seq>               JSON history record, seq is big-endian uint64
//	hid/<uuid>               seq of the record with that id
//	hscope/<scope>/<seq>     empty, scope index
//
// Type, id and scope segments are query-escaped so '/' never appears inside
// a segment.
const (
	docPrefix   = "doc/"
	histPrefix  = "hist/"
	hidPrefix   = "hid/"
	scopePrefix = "hscope/"
	seqKey      = "seq/history"
)

func docTypePrefix(typeName string) []byte {
	return []byte(docPrefix + url.QueryEscape(typeName) + "/")
}

func docKey(typeName, id string) []byte {
	return append(docTypePrefix(typeName), url.QueryEscape(id)...)
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)

	return b
}

func histKey(seq uint64) []byte {
	return append([]byte(histPrefix), encodeSeq(seq)...)
}

func hidKey(id string) []byte {
	return []byte(hidPrefix + id)
}

func scopeIndexPrefix(scope string) []byte {
	return []byte(scopePrefix + url.QueryEscape(scope) + "/")
}

func scopeKey(scope string, seq uint64) []byte {
	return append(scopeIndexPrefix(scope), encodeSeq(seq)...)
}

// seqFromKey extracts the trailing sequence number from a hist or hscope key.
func seqFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}

	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// prefixEnd returns the smallest key greater than every key with prefix p,
// used as the seek target of reverse iteration.
func prefixEnd(p []byte) []byte {
	end := make([]byte, len(p)+1)
	copy(end, p)
	end[len(p)] = 0xFF

	return end
}
