package types

// TxResult is the outcome of a single-hash transaction action. Error is
// empty on success.
type TxResult struct {
	ActiveKey     string   `json:"activeKey"`
	Hash          string   `json:"hash"`
	ApproveHashes []string `json:"approveHashes,omitempty"`
	Error         string   `json:"error"`
	ErrorDetail   string   `json:"errorDetail,omitempty"`
}

// TxHashesResult is the outcome of a multi-hash action such as a token approval
type TxHashesResult struct {
	ActiveKey   string   `json:"activeKey"`
	Hashes      []string `json:"hashes"`
	Error       string   `json:"error"`
	ErrorDetail string   `json:"errorDetail,omitempty"`
}

// Succeeded reports whether the action completed without error
func (r TxResult) Succeeded() bool {
	return r.Error == ""
}

func (r TxHashesResult) Succeeded() bool {
	return r.Error == ""
}
