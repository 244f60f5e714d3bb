package convert

// identityConverter handles same-prefix pairs (e.g. claude-custom caller
// talking to a claude-code-custom account): the wire shape is already
// identical, so conversion is a pass-through in both directions.
type identityConverter struct{}

func (identityConverter) ConvertRequest(callerWire []byte) ([]byte, error) {
	return callerWire, nil
}

func (identityConverter) ConvertResponse(upstreamWire []byte) ([]byte, error) {
	return upstreamWire, nil
}

func (identityConverter) ConvertStreamChunk(upstreamChunk []byte, state *StreamState) ([]byte, error) {
	return upstreamChunk, nil
}
