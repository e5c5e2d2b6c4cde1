package dto

type GetHealthCommand struct{}

type HealthOutput struct {
	Status        string   `json:"status"`
	StorageDriver string   `json:"storage_driver,omitempty"`
	Chains        []string `json:"chains,omitempty"`
}
