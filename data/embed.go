package data

import (
	_ "embed"
)

//go:embed initdb/mariadb/002-ddl-privileges.sql
var InitdbMariaDBPrivileges string

//go:embed seeds/base.ttl
var BaseOntology string
