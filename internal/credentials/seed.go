package credentials

import (
	"encoding/json"
	"fmt"
	"os"

	"compliance/internal/domain"

	"github.com/google/uuid"
)

type seedProject struct {
	ID              string `json:"id"`
	Name            string `json:"project_name"`
	URL             string `json:"project_url"`
	AdminCredential string `json:"service_role_key"`
	UserID          string `json:"user_id"`
}

// LoadSeedFile reads the projects a memory store starts with. The file
// holds a JSON array of project_credentials rows.
func LoadSeedFile(path string) ([]domain.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed rows and rejects entries the store could never
// serve.
func ParseSeed(data []byte) ([]domain.Project, error) {
	var rows []seedProject
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	projects := make([]domain.Project, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		if _, err := uuid.Parse(row.ID); err != nil || len(row.ID) != 36 {
			return nil, fmt.Errorf("seed entry %d: id %q is not a UUID", i, row.ID)
		}
		if row.URL == "" || row.AdminCredential == "" {
			return nil, fmt.Errorf("seed entry %d: project_url and service_role_key are required", i)
		}
		if seen[row.ID] {
			return nil, fmt.Errorf("seed entry %d: duplicate id %s", i, row.ID)
		}
		seen[row.ID] = true

		projects = append(projects, domain.Project{
			ID:              row.ID,
			Name:            row.Name,
			URL:             row.URL,
			AdminCredential: row.AdminCredential,
			UserID:          row.UserID,
		})
	}
	return projects, nil
}
