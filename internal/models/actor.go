package models

import "fmt"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleWorker   Role = "worker"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleWorker
}

// Actor identifies who attempts a transition. Customers are keyed by e-mail,
// workers by their worker identifier.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func CustomerActor(email string) Actor {
	return Actor{Role: RoleCustomer, ID: email}
}

func WorkerActor(id string) Actor {
	return Actor{Role: RoleWorker, ID: id}
}

func (a Actor) IsWorker() bool   { return a.Role == RoleWorker }
func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }

func (a Actor) Validate() error {
	if !a.Role.Valid() {
		return fmt.Errorf("invalid actor role %q", a.Role)
	}
	if a.ID == "" {
		return fmt.Errorf("actor id is required")
	}
	return nil
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}
