package model

// Tenant is an institution whose documents, chunks and query logs are
// isolated from every other tenant.
type Tenant struct {
	BaseModel
	Name           string      `gorm:"size:255;not null" json:"name"`
	AllowedDomains StringArray `gorm:"type:jsonb;not null" json:"allowed_domains"`
	SeedURLs       StringArray `gorm:"type:jsonb" json:"seed_urls"`
	IsActive       bool        `gorm:"default:true" json:"is_active"`
}

func (Tenant) TableName() string {
	return "kd_tenants"
}
