package clerk

import "encoding/json"

type ClerkWebhookEvent struct {
	Data   json.RawMessage `json:"data"`
	Object string          `json:"object"`
	Type   string          `json:"type"`
}

type ClerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type ClerkExternalAccount struct {
	Provider string `json:"provider"`
	Username string `json:"username"`
	Picture  string `json:"picture"`
}

type ClerkUserData struct {
	ID                    string                 `json:"id"`
	FirstName             string                 `json:"first_name"`
	LastName              string                 `json:"last_name"`
	Username              string                 `json:"username"`
	ImageURL              string                 `json:"image_url"`
	ProfileImageURL       string                 `json:"profile_image_url"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	EmailAddresses        []ClerkEmailAddress    `json:"email_addresses"`
	ExternalAccounts      []ClerkExternalAccount `json:"external_accounts"`
}
