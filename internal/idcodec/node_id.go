package idcodec

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/fenwick-labs/codegraph/internal/types"
)

// unitSep separates fields hashed into a NodeID half, matching the
// teacher's composite-id packing idiom (PackUint32Pair) extended from
// two 32-bit halves to two 64-bit halves.
const unitSep = 0x1f

// DeriveNodeID computes the 128-bit stable id of a CodeNode from the
// fields its uniqueness invariant names: (project_id, file_path,
// start_line, start_col, name, kind). The low half hashes the project
// and file location; the high half hashes the in-file position and
// identity. Two nodes at the same position with the same name and kind
// share the high half, so nodes in different files are told apart by
// the low half.
func DeriveNodeID(projectID, filePath string, startLine, startCol int, name string, kind types.NodeKind) types.NodeID {
	low := xxhash.New()
	low.WriteString(projectID)
	low.Write([]byte{unitSep})
	low.WriteString(filePath)

	high := xxhash.New()
	high.WriteString(strconv.Itoa(startLine))
	high.Write([]byte{unitSep})
	high.WriteString(strconv.Itoa(startCol))
	high.Write([]byte{unitSep})
	high.WriteString(name)
	high.Write([]byte{unitSep})
	high.WriteString(string(kind))

	var id types.NodeID
	binary.BigEndian.PutUint64(id[0:8], low.Sum64())
	binary.BigEndian.PutUint64(id[8:16], high.Sum64())
	return id
}

// EncodeNodeID renders a NodeID as a base-63 string, concatenating the
// independent encodings of its two 64-bit halves the way the teacher's
// EncodeComposite concatenates a packed uint64 before encoding.
func EncodeNodeID(id types.NodeID) string {
	low := binary.BigEndian.Uint64(id[0:8])
	high := binary.BigEndian.Uint64(id[8:16])
	return Encode(high) + "." + Encode(low)
}

// DecodeNodeID parses a string produced by EncodeNodeID back into a
// NodeID. Returns ErrInvalidChar if the string does not contain
// exactly one separator.
func DecodeNodeID(encoded string) (types.NodeID, error) {
	sep := -1
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == '.' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return types.NodeID{}, ErrInvalidChar
	}

	high, err := Decode(encoded[:sep])
	if err != nil {
		return types.NodeID{}, err
	}
	low, err := Decode(encoded[sep+1:])
	if err != nil {
		return types.NodeID{}, err
	}

	var id types.NodeID
	binary.BigEndian.PutUint64(id[0:8], low)
	binary.BigEndian.PutUint64(id[8:16], high)
	return id, nil
}
