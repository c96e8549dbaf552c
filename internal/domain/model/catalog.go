package model

import "time"

// DocType — тип документа, принимаемого подразделением.
type DocType struct {
	ID           int64
	DepartmentID int64
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RequiredField — обязательное поле типа документа.
type RequiredField struct {
	ID           int64
	DocTypeID    int64
	FieldName    string
	ExampleValue *string
	OrderNo      int
}

// Deadline — срок сдачи документа (календарная дата).
// Date == nil означает «срок не установлен».
type Deadline struct {
	DocTypeID int64
	Date      *time.Time
}
