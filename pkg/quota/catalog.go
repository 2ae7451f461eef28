package quota

// ProviderGemini is the provider name for the Google generative language API.
const ProviderGemini = "gemini"

// DefaultResource is used when no resource is configured.
const DefaultResource = "gemini-2.5-flash-lite-free"

// builtin is the shipped resource table. The same backing model appears once
// per tier because paid and free keys carry different quotas.
var builtin = []Profile{
	// Paid tier
	{ID: "gemini-3-pro-paid", Model: "gemini-3-pro-preview", Tier: TierPaid, Display: "Gemini 3 Pro (Paid)", Limits: Limits{RPM: 25, TPM: 1_000_000, RPD: 250}},
	{ID: "gemini-3-flash-paid", Model: "gemini-3-flash-preview", Tier: TierPaid, Display: "Gemini 3 Flash (Paid)", Limits: Limits{RPM: 1000, TPM: 4_000_000, RPD: 10_000}},
	{ID: "gemini-2.5-pro-paid", Model: "gemini-2.5-pro", Tier: TierPaid, Display: "Gemini 2.5 Pro (Paid)", Limits: Limits{RPM: 150, TPM: 2_000_000, RPD: 10_000}},
	{ID: "gemini-2.5-flash-paid", Model: "gemini-2.5-flash", Tier: TierPaid, Display: "Gemini 2.5 Flash (Paid)", Limits: Limits{RPM: 1000, TPM: 4_000_000, RPD: 10_000}},
	{ID: "gemini-2.5-flash-lite-paid", Model: "gemini-2.5-flash-lite", Tier: TierPaid, Display: "Gemini 2.5 Flash Lite (Paid)", Limits: Limits{RPM: 4000, TPM: 4_000_000, RPD: 1_000_000}},
	{ID: "gemini-2.0-flash-paid", Model: "gemini-2.0-flash", Tier: TierPaid, Display: "Gemini 2.0 Flash (Paid)", Limits: Limits{RPM: 1000, TPM: 4_000_000, RPD: 10_000}},

	// Free tier
	{ID: "gemini-3-flash-free", Model: "gemini-3-flash-preview", Tier: TierFree, Display: "Gemini 3 Flash (Free)", Limits: Limits{RPM: 5, TPM: 250_000, RPD: 10_000}},
	{ID: "gemini-3-pro-free", Model: "gemini-3-pro-preview", Tier: TierFree, Display: "Gemini 3 Pro (Free)", Limits: Limits{RPM: 2, TPM: 32_000, RPD: 50}},
	{ID: "gemini-2.5-flash-free", Model: "gemini-2.5-flash", Tier: TierFree, Display: "Gemini 2.5 Flash (Free)", Limits: Limits{RPM: 5, TPM: 250_000, RPD: 10_000}},
	{ID: "gemini-2.5-pro-free", Model: "gemini-2.5-pro", Tier: TierFree, Display: "Gemini 2.5 Pro (Free)", Limits: Limits{RPM: 2, TPM: 32_000, RPD: 50}},
	{ID: "gemini-2.5-flash-lite-free", Model: "gemini-2.5-flash-lite", Tier: TierFree, Display: "Gemini 2.5 Flash Lite (Free)", Limits: Limits{RPM: 10, TPM: 250_000, RPD: 10_000}},
	{ID: "gemini-2.0-flash-free", Model: "gemini-2.0-flash", Tier: TierFree, Display: "Gemini 2.0 Flash (Free)", Limits: Limits{RPM: 10, TPM: 1_000_000, RPD: 1500}},
	{ID: "gemini-2.0-flash-lite-free", Model: "gemini-2.0-flash-lite", Tier: TierFree, Display: "Gemini 2.0 Flash Lite (Free)", Limits: Limits{RPM: 15, TPM: 1_000_000, RPD: 1500}},

	// Gemma
	{ID: "gemma-3-27b", Model: "gemma-3-27b-it", Tier: TierFree, Display: "Gemma 3 27B", Limits: Limits{RPM: 30, TPM: 15_000, RPD: 10_000}},
	{ID: "gemma-3-12b", Model: "gemma-3-12b-it", Tier: TierFree, Display: "Gemma 3 12B", Limits: Limits{RPM: 30, TPM: 15_000, RPD: 10_000}},
}

// DefaultCatalog returns the shipped resource table.
func DefaultCatalog() *Catalog {
	profiles := make([]Profile, len(builtin))
	for i, p := range builtin {
		p.Provider = ProviderGemini
		profiles[i] = p
	}
	c, err := NewCatalog(profiles...)
	if err != nil {
		panic("quota: invalid builtin catalog: " + err.Error())
	}
	return c
}
