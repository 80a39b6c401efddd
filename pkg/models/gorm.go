package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&AuditRecord{},
		&CollectionTTL{},
		&PromptTemplate{},
	}
}
