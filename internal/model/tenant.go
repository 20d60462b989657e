package model

type Tenant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Collection string `json:"collection"`
	KeyPrefix  string `json:"-"`
	KeyHash    string `json:"-"`
	Active     bool   `json:"active"`
	Ctime      int64  `json:"ctime"`
}
