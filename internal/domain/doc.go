// Package domain defines the normalized geocoding model shared by every
// provider adapter, the orchestrator, and the service adapters.
//
// # Queries
//
// A forward query is a [GeocodeQuery]. Its Address field carries either
// free-form address text or an IP literal; [Classify] decides which:
//
//	"29 rue chevreul, Lyon"  →  address
//	"127.0.0.1"              →  IPv4
//	"2001:db8::1"            →  IPv6
//	"fe80::1%eth0"           →  address (zoned literals are not geolocatable)
//
// Country, City, ZipCode, State and Language are hints layered on an address.
// Adapters forward the ones their upstream understands and ignore the rest.
//
// # Results
//
// Every provider produces the same [Result] shape. Keys are never omitted
// from the JSON form: a field the provider did not report is an empty
// string, and Extra.Confidence is null. CountryCode is always ISO 3166-1
// alpha-2 in upper case; providers returning alpha-3 codes (here, agol) are
// converted.
//
// AdministrativeLevels maps "level<N>long"/"level<N>short" to names, where N
// is the provider's own administrative depth (1 = first-order subdivision).
//
// # Confidence
//
// Confidence is normalized to 0–1 for every provider that exposes one:
//
//	google         location_type: ROOFTOP 1, RANGE_INTERPOLATED 0.9,
//	               GEOMETRIC_CENTER 0.7, APPROXIMATE 0.5
//	here           Relevance (already 0–1)
//	openstreetmap  importance (already 0–1); also locationiq, pickpoint,
//	               openmapquest
//	mapbox         relevance (already 0–1)
//	tomtom         matchConfidence.score (already 0–1)
//	yandex         precision: exact 1, number 0.9, near 0.8, range 0.7,
//	               street 0.6, anything else 0.4
//	opencage       confidence / 10
//	mapquest       geocodeQuality: POINT 1, ADDRESS 0.9, INTERSECTION 0.8,
//	               STREET 0.7, NEIGHBORHOOD 0.6, ZIP 0.5, CITY 0.4,
//	               COUNTY 0.3, STATE 0.2, COUNTRY 0.1
//	agol           Score / 100
//	geocodio       accuracy (already 0–1)
//	virtualearth   High 1, Medium 0.7, Low 0.4
//	smartystreets  precision: Zip9 1, Zip8 0.9, Zip7 0.8, Zip6 0.7,
//	               Zip5 0.6, anything else 0.3
//
// ipstack and maxmind report no confidence. Results without a confidence
// never pass an explicit minConfidence threshold.
//
// # Raw payloads
//
// [ResultSet.Raw] holds the upstream body verbatim. It is absent
// from the JSON form of a ResultSet, which is the bare results array.
//
// # Errors
//
// Zero matches is success with an empty ResultSet. Failures are one of
// [ConfigurationError], [CapabilityError], [TransportError], [UpstreamError]
// or [FormatterError]; match them with errors.As.
package domain
