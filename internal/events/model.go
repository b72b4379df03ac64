package events

import "time"

// Event is one row of the upstream GestionEventos table. Rows are immutable once
// read; the bridge never writes to the source.
type Event struct {
	ID             int64     `json:"id"`
	EventRef       int64     `json:"eventid"`
	Comment        string    `json:"comentario"`
	Responsible    string    `json:"responsable"`
	ImpactedClient string    `json:"cliente_impactado"`
	ImpactedSystem string    `json:"sistema_impactado"`
	OwnerUserID    int64     `json:"id_user"`
	ManagedAt      time.Time `json:"fecha_gestion"`
}
