package cache

import "fmt"

// DecodeContainer splits a multi-member archive's decoded bytes into
// memberCount member buffers using the chunked, delta-encoded footer
// layout described in spec.md §3/§4.3.
func DecodeContainer(data []byte, memberCount int) ([][]byte, error) {
	if memberCount <= 0 {
		return nil, fmt.Errorf("%w: memberCount must be positive", ErrMalformed)
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: container buffer too short", ErrMalformed)
	}

	chunkCount := int(data[len(data)-1])
	footerLen := 1 + chunkCount*memberCount*4
	if footerLen > len(data) {
		return nil, fmt.Errorf("%w: footer overruns container start", ErrMalformed)
	}
	footerStart := len(data) - footerLen

	chunkSizes := make([][]int, chunkCount)
	sizes := make([]int, memberCount)

	pos := footerStart
	for chunk := 0; chunk < chunkCount; chunk++ {
		chunkSizes[chunk] = make([]int, memberCount)
		chunkSize := 0
		for member := 0; member < memberCount; member++ {
			delta := int(int32(be32(data[pos : pos+4])))
			pos += 4
			chunkSize += delta
			chunkSizes[chunk][member] = chunkSize
			sizes[member] += chunkSize
		}
	}

	members := make([][]byte, memberCount)
	for m := range members {
		members[m] = make([]byte, sizes[m])
	}

	fillPos := make([]int, memberCount)
	readPos := 0
	for chunk := 0; chunk < chunkCount; chunk++ {
		for member := 0; member < memberCount; member++ {
			n := chunkSizes[chunk][member]
			if readPos+n > footerStart {
				return nil, fmt.Errorf("%w: chunk data overruns footer", ErrMalformed)
			}
			copy(members[member][fillPos[member]:fillPos[member]+n], data[readPos:readPos+n])
			readPos += n
			fillPos[member] += n
		}
	}

	return members, nil
}

// MemberSizes returns the per-member total sizes of a container. It runs
// a full DecodeContainer and reports the length of each member, so the
// member buffers are allocated and filled as part of the call.
func MemberSizes(data []byte, memberCount int) ([]int, error) {
	members, err := DecodeContainer(data, memberCount)
	if err != nil {
		return nil, err
	}
	sizes := make([]int, len(members))
	for i, m := range members {
		sizes[i] = len(m)
	}
	return sizes, nil
}

// EncodeContainer joins memberData into a single-chunk container archive:
// every member's bytes concatenated, followed by a footer of per-member
// deltas against the running chunk size (reset to 0 at the start of the
// chunk) and a trailing chunk count of 1.
func EncodeContainer(memberData [][]byte) ([]byte, error) {
	if len(memberData) == 0 {
		return nil, fmt.Errorf("%w: no members to encode", ErrMalformed)
	}

	var total int
	for _, m := range memberData {
		total += len(m)
	}

	out := make([]byte, total+1+len(memberData)*4)
	pos := 0
	for _, m := range memberData {
		copy(out[pos:], m)
		pos += len(m)
	}

	prevLen := 0
	for _, m := range memberData {
		delta := len(m) - prevLen
		prevLen = len(m)
		putBE32(out[pos:pos+4], uint32(int32(delta)))
		pos += 4
	}
	out[pos] = 1

	return out, nil
}
