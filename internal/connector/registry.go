package connector

// Parameter describes one configurable field of an account kind so the
// new-account and edit-account flows can round-trip every setting.
type Parameter struct {
	Name    string
	Label   string
	Secret  bool
	Default string
}

// Descriptor is the static metadata for one connector kind.
type Descriptor struct {
	Kind        Kind
	DisplayName string
	Description string
	Parameters  []Parameter
}

var descriptors = []Descriptor{
	{
		Kind:        KindLocalNode,
		DisplayName: "Local Server (Wallet)",
		Description: "Connects to a local or remote bitcoin server over JSON-RPC, showing the wallet balance, transactions and mining state.",
		Parameters: []Parameter{
			{Name: "host", Label: "Host", Default: "localhost"},
			{Name: "port", Label: "Port", Default: "8332"},
			{Name: "username", Label: "Username", Default: "user"},
			{Name: "password", Label: "Password", Secret: true, Default: "pass"},
		},
	},
	{
		Kind:        KindBTCGuild,
		DisplayName: "BTCGuild (Mining Pool)",
		Description: "Retrieves your confirmed rewards, per-worker hash rates and global pool statistics from the BTCGuild mining pool.",
		Parameters: []Parameter{
			{Name: "apiKey", Label: "API Key", Secret: true},
		},
	},
	{
		Kind:        KindOzCoin,
		DisplayName: "OzCoin (Mining Pool)",
		Description: "Retrieves your confirmed rewards and contributing hash rate from the OzCoin mining pool.",
		Parameters: []Parameter{
			{Name: "apiKey", Label: "API Key", Secret: true},
		},
	},
	{
		Kind:        KindMtGox,
		DisplayName: "MtGox (Trading)",
		Description: "Connects to the MtGox exchange with the specified username and password, showing your balance and open orders.",
		Parameters: []Parameter{
			{Name: "username", Label: "Username"},
			{Name: "password", Label: "Password", Secret: true},
		},
	},
	{
		Kind:        KindExplorer,
		DisplayName: "Block Explorer (Wallet)",
		Description: "Watches a public address through the block explorer, reconciling its full transaction history into a balance without running a server.",
		Parameters: []Parameter{
			{Name: "address", Label: "Address"},
		},
	},
}

// Descriptors returns the registered kinds in stable display order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

func (d Descriptor) hasParameter(name string) bool {
	for _, p := range d.Parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

func DescriptorFor(kind Kind) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Kind == kind {
			return d, true
		}
	}
	return Descriptor{}, false
}
