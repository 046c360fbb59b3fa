package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/meddb/internal/middleware"
)

// API bundles the handlers mounted under /api.
type API struct {
	Committees *CommitteeHandler
	Catalog    *CatalogHandler
	Persons    *PersonHandler
	Directory  *DirectoryHandler
	Reconcile  *ReconcileHandler
}

// Register mounts the API routes. Reads are open; mutations are gated on Authorizer roles.
func (a *API) Register(api fiber.Router, auth middleware.Auth) {
	editMember := auth.EditMember()
	editCommittee := auth.EditCommittee()

	committees := api.Group("/committees")
	committees.Get("/tree", a.Committees.GetTree)
	committees.Get("/search", a.Committees.SearchTree)
	committees.Post("/", editCommittee, a.Committees.CreateCommittee)
	committees.Get("/:id", a.Committees.GetCommittee)
	committees.Patch("/:id", editCommittee, a.Committees.UpdateCommittee)
	committees.Delete("/:id", editCommittee, a.Committees.DeleteCommittee)
	committees.Get("/:id/children", a.Committees.GetChildren)
	committees.Get("/:id/members", a.Committees.GetMembers)
	committees.Post("/:id/members", editMember, a.Committees.AddMember)
	committees.Delete("/:id/members/:personId/:roleId", editMember, a.Committees.DeleteMember)

	api.Post("/selection", a.Committees.ApplySelection)

	api.Get("/committee-types", a.Catalog.GetCommitteeTypes)
	api.Post("/committee-types", editCommittee, a.Catalog.CreateCommitteeType)
	api.Put("/committee-types/:id", editCommittee, a.Catalog.UpdateCommitteeType)
	api.Delete("/committee-types/:id", editCommittee, a.Catalog.DeleteCommitteeType)

	api.Get("/roles", a.Catalog.GetRoles)
	api.Post("/roles", editCommittee, a.Catalog.CreateRole)
	api.Put("/roles/:id", editCommittee, a.Catalog.UpdateRole)
	api.Delete("/roles/:id", editCommittee, a.Catalog.DeleteRole)

	api.Get("/unions", a.Catalog.GetUnions)
	api.Post("/unions", editCommittee, a.Catalog.CreateUnion)
	api.Put("/unions/:id", editCommittee, a.Catalog.UpdateUnion)
	api.Delete("/unions/:id", editCommittee, a.Catalog.DeleteUnion)

	api.Get("/persons", a.Persons.GetPersons)
	api.Get("/persons/not-in-system", a.Persons.GetPersonsNotInSystem)
	api.Get("/persons/:id", a.Persons.GetPerson)

	api.Get("/directory/search", a.Directory.Search)
	api.Get("/directory/exists", a.Directory.EmailExists)

	api.Get("/reconciliation/runs", a.Reconcile.GetRuns)
	api.Post("/reconciliation/runs", editCommittee, a.Reconcile.StartRun)
}
