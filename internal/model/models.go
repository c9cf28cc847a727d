package model

// All lists the tables owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&ResearchSession{},
		&ResearchTurn{},
		&ApprovedReference{},
	}
}
