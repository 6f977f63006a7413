package cnst

// Default configuration file names, resolved through helper.GetCfgPath.
const (
	SignpadYaml = "signpad.yaml"
	MockCRMYaml = "mock-crm.yaml"
)
