package taxonomy

// defaultTaxonomy is the built-in mapping for fertility-clinic lab
// reports and embryology sheets. Deployments override it by placing a
// taxonomy.yaml in the folio home directory.
const defaultTaxonomy = `fields:
  - field: amh
    labels: [AMH, amh_level, anti_mullerian_hormone]
    normalizer: numeric_unit
    units: [ng/mL, pmol/L]
    range: {min: 0, max: 25}
    importance: 1.5
  - field: fsh
    labels: [FSH, fsh_level, follicle_stimulating_hormone]
    normalizer: numeric_unit
    units: [IU/L, mIU/mL]
    range: {min: 0, max: 40}
    importance: 1.5
  - field: lh
    labels: [LH, lh_level, luteinizing_hormone]
    normalizer: numeric_unit
    units: [IU/L, mIU/mL]
    range: {min: 0, max: 40}
  - field: estradiol
    labels: [E2, estradiol, oestradiol]
    normalizer: numeric_unit
    units: [pg/mL, pmol/L]
    range: {min: 0, max: 5000}
  - field: progesterone
    labels: [P4, progesterone]
    normalizer: numeric_unit
    units: [ng/mL, nmol/L]
    range: {min: 0, max: 300}
  - field: tsh
    labels: [TSH, thyroid_stimulating_hormone]
    normalizer: numeric_unit
    units: [mIU/L, uIU/mL]
    range: {min: 0, max: 10}
  - field: glucose
    labels: [glucose, glucose_value, GLU]
    normalizer: numeric_unit
    required: true
    units: [mg/dL, mmol/L]
    range: {min: 50, max: 200}
  - field: embryo_grade
    labels: [embryo_grade, grade, morphology_grade]
    normalizer: enum
    values: ["1AA", "1AB", "1BA", "1BB", "2AA", "2AB", "2BA", "2BB",
             "3AA", "3AB", "3BA", "3BB", "4AA", "4AB", "4BA", "4BB",
             "5AA", "5AB", "5BA", "5BB", "6AA", "6AB", "6BA", "6BB"]
    importance: 2.0
  - field: oocytes_retrieved
    labels: [oocytes, oocytes_retrieved, eggs_retrieved]
    normalizer: numeric_unit
    range: {min: 0, max: 60}
  - field: fertilization_rate
    labels: [fertilization_rate, fert_rate]
    normalizer: numeric_unit
    units: ["%"]
    range: {min: 0, max: 100}
  - field: collection_date
    labels: [collection_date, sample_date, date_collected]
    normalizer: date
    required: true
    importance: 0.5
  - field: report_date
    labels: [report_date, date_reported]
    normalizer: date
    importance: 0.25
  - field: clinician
    labels: [clinician, physician, doctor]
    normalizer: text
    importance: 0.1
`
