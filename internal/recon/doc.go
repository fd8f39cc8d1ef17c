// Package recon holds the collection modules that run inside a Run Context: passive
// subdomain enumeration from certificate transparency sources, the DNS mail profile and
// low-noise web signals. Modules only reach the network through the guarded clients, so
// every request they make is admitted by the policy guard and recorded in the ledger.
package recon
