package protocol

// RoomDTO is the read-only room view served by the admin endpoints.
type RoomDTO struct {
	ID           string     `json:"id"`
	Platform     Platform   `json:"platform"`
	HostID       string     `json:"hostId"`
	CurrentState VideoState `json:"currentState"`
	CurrentTime  float64    `json:"currentTime"`
	Users        []UserInfo `json:"users"`
}

type RoomCountResponse struct {
	Count int `json:"count"`
}
