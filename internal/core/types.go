package core

import (
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

type (
	// Record aliases domain.Record.
	Record = domain.Record
	// ChangeSet aliases domain.ChangeSet.
	ChangeSet = domain.ChangeSet
	// Result aliases domain.Result.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
	// Bag aliases attribute.Bag.
	Bag = attribute.Bag
	// Category aliases attribute.Category.
	Category = attribute.Category
)

// NewDefaultRulesEngine returns the rules engine enforcing record integrity.
func NewDefaultRulesEngine() *RulesEngine {
	return domain.DefaultRulesEngine()
}
