package mcpserver

// RegistrationFormat describes the fields an LLM client must supply when
// registering a property, and how the registry derives the rest.
const RegistrationFormat = `# LandChain Registration Format

A registration creates one immutable ledger record and its certificate.
Every registration must supply all four groups below; field errors are
reported together, keyed by field name.

## Owner

| Field | Rule |
|---|---|
| owner_name | at least 2 characters; letters, spaces and periods only |
| owner_national_id | exactly 12 digits |
| owner_phone | 10 to 15 of digits, spaces, dashes, parentheses; optional leading + |
| owner_email | a plain address such as name@example.com |

## Property

| Field | Rule |
|---|---|
| property_address | at least 10 characters |
| district | at least 2 characters |
| province | required |
| land_size_acres | greater than 0 and at most 10000 |
| land_type | one of Residential, Commercial, Agricultural, Industrial |

## Photo

- ` + "`owner_photo_ref`" + ` is required. Obtain one with the ` + "`upload_owner_photo`" + ` tool
  (JPEG, PNG, GIF or WebP) and pass the returned ` + "`ref`" + ` unchanged.

## Location

- ` + "`latitude`" + ` in [-90, 90] and ` + "`longitude`" + ` in [-180, 180], decimal degrees.

## Assigned by the registry

- ` + "`id`" + ` (LAND001), ` + "`registration_number`" + ` (REG<year><seq>, e.g. REG2025001),
  ` + "`registration_date`" + ` (YYYY-MM-DD), ` + "`block_hash`" + `, ` + "`previous_hash`" + `
  and ` + "`transaction_hash`" + `.
- The certificate id (CERT<year><seq>) comes from a separate sequence.

## Verification

Use ` + "`verify_property`" + ` with a registration number (case-insensitive) or an
owner national id (exact). Either key matching is enough.
`
