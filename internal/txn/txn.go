package txn

import "github.com/bwmarrin/snowflake"

// Transaction is the opaque operation handle threaded through index
// operations. It carries an id only; lifecycle and recovery semantics
// live in layers above this one.
type Transaction struct {
	id snowflake.ID
}

// ID returns the transaction id, or 0 for a nil handle.
func (t *Transaction) ID() int64 {
	if t == nil {
		return 0
	}
	return t.id.Int64()
}

// Manager hands out transaction handles with snowflake ids so they stay
// unique across processes sharing a node id space.
type Manager struct {
	node *snowflake.Node
}

func NewManager(nodeID int64) (*Manager, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Manager{node: node}, nil
}

func (m *Manager) Begin() *Transaction {
	return &Transaction{id: m.node.Generate()}
}
