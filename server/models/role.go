package models

const (
	SARPANCH_ROLE = "SARPANCH"
	VILLAGER_ROLE = "VILLAGER"
)

var RoleNameMap = map[string]bool{
	SARPANCH_ROLE: true,
	VILLAGER_ROLE: true,
}
